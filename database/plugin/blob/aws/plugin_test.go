// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aws_test

import (
	"context"
	"testing"
	"time"

	"github.com/blinklabs-io/endorse/database/plugin/blob/aws"
	"github.com/blinklabs-io/endorse/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocation(t *testing.T) {
	tests := []struct {
		location string
		wantErr  bool
	}{
		{location: "gcs://bucket", wantErr: true},
		{location: "s3://", wantErr: true},
		{location: "s3:///prefix", wantErr: true},
		{location: "s3://bucket"},
		{location: "s3://bucket/some/prefix/"},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			store, err := aws.New(tt.location, nil, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}

func TestStartRequiresBucket(t *testing.T) {
	store, err := aws.NewWithOptions()
	require.NoError(t, err)
	require.Error(t, store.Start())
}

func TestOperationsBeforeStart(t *testing.T) {
	ctx := context.Background()
	store, err := aws.NewWithOptions(aws.WithBucket("artifacts"))
	require.NoError(t, err)
	require.ErrorIs(
		t,
		store.Put(ctx, "x.pdf", []byte("x"), "application/pdf"),
		types.ErrBlobStoreUnavailable,
	)
	_, err = store.Get(ctx, "x.pdf")
	require.ErrorIs(t, err, types.ErrBlobStoreUnavailable)
	require.ErrorIs(t, store.Delete(ctx, "x.pdf"), types.ErrBlobStoreUnavailable)
	_, err = store.SignedURL(ctx, "x.pdf", time.Minute)
	require.ErrorIs(t, err, types.ErrBlobStoreUnavailable)
}

func TestStartWithEndpoint(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_REGION", "us-east-1")
	store, err := aws.NewWithOptions(
		aws.WithBucket("artifacts"),
		aws.WithEndpoint("http://127.0.0.1:9000"),
		aws.WithTimeout(5*time.Second),
	)
	require.NoError(t, err)
	require.NoError(t, store.Start())
	defer store.Stop()
	assert.NotNil(t, store.Client())
}

func TestNewFromCmdlineOptions(t *testing.T) {
	p := aws.NewFromCmdlineOptions()
	require.NotNil(t, p)
	_, ok := p.(*aws.BlobStoreS3)
	assert.True(t, ok)
}
