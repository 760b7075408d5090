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

package fileaccess

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Content types set on uploaded outputs so they can be fetched straight from the bucket by
// readers that go by Content-Type
var contentTypes = map[string]string{
	".arrow": "application/vnd.apache.arrow.stream",
	".json":  "application/json",
}

const defaultContentType = "application/octet-stream"

// S3Access - FileAccess on an S3 bucket
type S3Access struct {
	api s3iface.S3API
}

func MakeS3Access(api s3iface.S3API) S3Access {
	return S3Access{api: api}
}

// ListObjects - every key under prefix, across as many listing pages as S3 returns. Folder
// placeholder keys (ending in /) are skipped
func (a S3Access) ListObjects(bucket string, prefix string) ([]string, error) {
	keys := []string{}
	err := a.api.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			if obj.Key != nil && !strings.HasSuffix(*obj.Key, "/") {
				keys = append(keys, *obj.Key)
			}
		}
		return true
	})

	if err != nil {
		return []string{}, err
	}
	return keys, nil
}

func (a S3Access) ObjectExists(bucket string, key string) (bool, error) {
	_, err := a.api.HeadObject(&s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	// HEAD has no body, so S3 reports a bare NotFound rather than NoSuchKey
	if a.IsNotFoundError(err) {
		return false, nil
	}
	return false, err
}

func (a S3Access) ReadObject(bucket string, key string) ([]byte, error) {
	out, err := a.api.GetObject(&s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (a S3Access) WriteObject(bucket string, key string, data []byte) error {
	contentType, ok := contentTypes[path.Ext(key)]
	if !ok {
		contentType = defaultContentType
	}

	_, err := a.api.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	return err
}

func (a S3Access) ReadJSON(bucket string, key string, itemsPtr interface{}, emptyIfNotFound bool) error {
	return readJSON(a, bucket, key, itemsPtr, emptyIfNotFound)
}

func (a S3Access) WriteJSON(bucket string, key string, itemsPtr interface{}) error {
	return writeJSON(a, bucket, key, itemsPtr)
}

func (a S3Access) DeleteObject(bucket string, key string) error {
	_, err := a.api.DeleteObject(&s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	return err
}

func (a S3Access) IsNotFoundError(err error) bool {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	code := aerr.Code()
	return code == s3.ErrCodeNoSuchKey || code == "NotFound"
}
