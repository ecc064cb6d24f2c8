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

// Package s3 provides a dumpkit.Source which reads raw dump files from an S3
// bucket. Objects under a prefix play the role of a simulation directory.
package s3

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/ampt/dumpkit"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

var _ dumpkit.Source = &Source{}

// SrcOption is a functional option type for s3.Source.
type SrcOption func(s *Source)

// OptSrcBucket is a SrcOption which sets the S3 bucket for a Source.
func OptSrcBucket(bucket string) SrcOption {
	return func(s *Source) {
		s.bucket = bucket
	}
}

// OptSrcRegion is a SrcOption which sets the AWS region for a Source.
func OptSrcRegion(region string) SrcOption {
	return func(s *Source) {
		s.region = region
	}
}

// OptSrcPrefix tells the source to list only the objects in the bucket that
// are under the specified prefix. The prefix names a directory, so
// "runs/alt80" and "runs/alt80/" are the same and neither matches
// "runs/alt80b/part.1.dat".
func OptSrcPrefix(prefix string) SrcOption {
	return func(s *Source) {
		s.prefix = prefix
	}
}

// OptSrcPatterns overrides the globs which select the raw objects of each
// kind. Globs are matched against the last element of the object key.
func OptSrcPatterns(patterns map[dumpkit.Kind]string) SrcOption {
	return func(s *Source) {
		for k, glob := range patterns {
			s.patterns[k] = glob
		}
	}
}

// OptSrcClient sets the S3 client, in place of one built from a new AWS
// session.
func OptSrcClient(client s3iface.S3API) SrcOption {
	return func(s *Source) {
		s.s3 = client
	}
}

// Source is a dumpkit.Source which reads dump files from S3.
type Source struct {
	bucket   string
	prefix   string
	region   string
	patterns map[dumpkit.Kind]string

	s3 s3iface.S3API
}

// NewSource returns a new Source with the options applied.
func NewSource(opts ...SrcOption) (*Source, error) {
	s := &Source{
		patterns: make(map[dumpkit.Kind]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bucket == "" {
		return nil, errors.New("no bucket given")
	}
	if s.prefix != "" && !strings.HasSuffix(s.prefix, "/") {
		s.prefix += "/"
	}
	if s.s3 == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(s.region)},
		)
		if err != nil {
			return nil, errors.Wrap(err, "getting new session")
		}
		s.s3 = s3.New(sess)
	}
	return s, nil
}

// Name returns the location of the source as bucket/prefix.
func (s *Source) Name() string {
	return strings.TrimSuffix(s.bucket+"/"+s.prefix, "/")
}

func (s *Source) pattern(k dumpkit.Kind) string {
	if glob, ok := s.patterns[k]; ok {
		return glob
	}
	return k.DefaultPattern()
}

// List implements dumpkit.Source. It returns object keys in natural order.
// Only objects directly under the prefix are considered.
func (s *Source) List(ctx context.Context, k dumpkit.Kind) ([]string, error) {
	glob := s.pattern(k)
	keys := make([]string, 0)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}
	err := s.s3.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			rel := strings.TrimPrefix(key, s.prefix)
			if rel == "" || strings.Contains(rel, "/") {
				continue
			}
			if ok, _ := path.Match(glob, rel); ok {
				keys = append(keys, key)
			}
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing objects in %s", s.Name())
	}
	dumpkit.SortNames(keys)
	return keys, nil
}

// Open implements dumpkit.Source.
func (s *Source) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	result, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "getting object %s", name)
	}
	return result.Body, nil
}
