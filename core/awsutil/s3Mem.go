// Licensed to NASA JPL under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. NASA JPL licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package awsutil

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// MemS3Client - in-memory S3 for unit tests. Only the calls fileaccess.S3Access makes are
// implemented, anything else panics through the nil embedded interface.
type MemS3Client struct {
	s3iface.S3API

	mutex        sync.Mutex
	Objects      map[string][]byte // keyed by bucket + "/" + key
	ContentTypes map[string]string
	Puts         []string
	Deletes      []string

	// PageSize - keys per listing page, so callers that page through listings can be tested
	PageSize int
	// FailPuts - keys whose PutObject fails
	FailPuts map[string]error
}

func NewMemS3Client() *MemS3Client {
	return &MemS3Client{Objects: map[string][]byte{}, ContentTypes: map[string]string{}, PageSize: 1000}
}

func (m *MemS3Client) PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	k := *input.Bucket + "/" + *input.Key
	if err, ok := m.FailPuts[*input.Key]; ok {
		return nil, err
	}
	m.Objects[k] = data
	if input.ContentType != nil {
		m.ContentTypes[k] = *input.ContentType
	}
	m.Puts = append(m.Puts, k)
	return &s3.PutObjectOutput{}, nil
}

func (m *MemS3Client) GetObject(input *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	data, ok := m.Objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *MemS3Client) HeadObject(input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	data, ok := m.Objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, awserr.New("NotFound", "Not Found", nil)
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (m *MemS3Client) DeleteObject(input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	k := *input.Bucket + "/" + *input.Key
	delete(m.Objects, k)
	delete(m.ContentTypes, k)
	m.Deletes = append(m.Deletes, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *MemS3Client) ListObjectsV2Pages(input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool) error {
	m.mutex.Lock()
	bucketPrefix := *input.Bucket + "/"
	prefix := ""
	if input.Prefix != nil {
		prefix = *input.Prefix
	}

	keys := []string{}
	for k := range m.Objects {
		if strings.HasPrefix(k, bucketPrefix+prefix) {
			keys = append(keys, k[len(bucketPrefix):])
		}
	}
	m.mutex.Unlock()

	sort.Strings(keys)

	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	for start := 0; start == 0 || start < len(keys); start += pageSize {
		end := start + pageSize
		if end > len(keys) {
			end = len(keys)
		}
		last := end >= len(keys)

		page := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(!last)}
		for _, k := range keys[start:end] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
		}
		if !fn(page, last) || last {
			break
		}
	}
	return nil
}
