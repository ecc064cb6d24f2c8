// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package leveldb

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/test"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

func entry(k dumpkit.Kind, step int64) dumpkit.PartitionInfo {
	return dumpkit.PartitionInfo{Kind: k, Timestep: step, File: "f", Epoch: 0, Rows: 10, Hash: 99}
}

func TestManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DirName)
	m, err := Open(dir)
	test.ErrNil(t, err, "Open")
	if m.Recovered() {
		t.Fatalf("new manifest should not be recovered")
	}

	test.ErrNil(t, m.Put(dumpkit.Grid, entry(dumpkit.Grid, 256), entry(dumpkit.Grid, 1), entry(dumpkit.Grid, 65536)), "Put grid")
	test.ErrNil(t, m.Put(dumpkit.Flow, entry(dumpkit.Flow, 3)), "Put flow")
	test.ErrNil(t, m.Close(), "Close")

	m, err = Open(dir)
	test.ErrNil(t, err, "reopen")
	defer m.Close()

	infos, err := m.Load(dumpkit.Grid)
	test.ErrNil(t, err, "Load grid")
	want := []dumpkit.PartitionInfo{entry(dumpkit.Grid, 1), entry(dumpkit.Grid, 256), entry(dumpkit.Grid, 65536)}
	if !reflect.DeepEqual(infos, want) {
		t.Fatalf("unexpected grid entries:\n%+v\nwant\n%+v", infos, want)
	}

	test.ErrNil(t, m.Delete(dumpkit.Grid, 256), "Delete")
	infos, err = m.Load(dumpkit.Grid)
	test.ErrNil(t, err, "Load grid")
	test.MustBe(t, 2, len(infos))

	test.ErrNil(t, m.Reset(dumpkit.Grid), "Reset")
	infos, err = m.Load(dumpkit.Grid)
	test.ErrNil(t, err, "Load grid")
	test.MustBe(t, 0, len(infos))

	infos, err = m.Load(dumpkit.Flow)
	test.ErrNil(t, err, "Load flow")
	test.MustBe(t, []dumpkit.PartitionInfo{entry(dumpkit.Flow, 3)}, infos)
}

func TestCorruptEntry(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), DirName))
	test.ErrNil(t, err, "Open")
	defer m.Close()
	err = m.db.Put(entryKey(dumpkit.Surf, 8), []byte("garbage"), &opt.WriteOptions{})
	test.ErrNil(t, err, "raw Put")

	_, err = m.Load(dumpkit.Surf)
	if _, ok := err.(*dumpkit.CatalogCorruption); !ok {
		t.Fatalf("expected corruption error, got %T: %v", err, err)
	}
}
