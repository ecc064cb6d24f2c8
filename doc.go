// Package dumpkit converts the text dump files written by the SPARTA flow
// solver into per-timestep Parquet partitions which analysis and plotting
// tools can load one timestep at a time.
//
// This package holds the types shared by every stage (Kind, Block, Schema,
// Box), the error taxonomy, and the small interfaces which connect the stages
// of the conversion pipeline. Implementations of each stage live in
// sub-packages.
//
// 1. Source
//
//    A dumpkit.Source lists the raw dump files of one kind and opens them for
//    reading. Raw files are append-only and are never modified. The file
//    package reads a local directory and the aws/s3 package reads a bucket.
//
// 2. Parser
//
//    The dump package turns one raw file into a lazy sequence of Blocks. Only
//    the rows of the current block are held in memory. Each block header is
//    handed to a SchemaResolver before any row is decoded, so that the rows
//    can be decoded into fixed-shape typed columns.
//
// 3. SchemaResolver
//
//    The schema package tracks the column schema for one (kind, directory)
//    pair. A changed column line opens a new epoch; schemas are never merged
//    across epochs.
//
// 4. Writer
//
//    The partition package writes one Block into one immutable Parquet file
//    named after its kind and timestep. Writes go to a temporary file which
//    is renamed into place, and rewriting identical content is a no-op.
//
// 5. Catalog
//
//    The catalog package lists the timesteps available for a kind using file
//    names only, backed by a Manifest (see the boltdb and leveldb packages)
//    that is always reconciled against the directory and rebuilt when it
//    cannot be trusted.
//
// The dataset package is the read side used by downstream consumers, and the
// convert package wires the stages above into a resumable, idempotent
// conversion run.
package dumpkit
