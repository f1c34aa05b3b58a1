package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsmount/wsmount/pkg/errors"
	"github.com/wsmount/wsmount/pkg/types"
)

type fakeS3 struct {
	inputs []*s3.ListObjectsV2Input
	out    *s3.ListObjectsV2Output
	err    error
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.inputs = append(f.inputs, in)
	return f.out, f.err
}

func boolPtr(b bool) *bool { return &b }

func s3Object(object string) types.Resource {
	return types.Resource{Name: "p", Kind: types.KindS3Object, Bucket: "b", Object: object}
}

func TestS3Prober_Directory(t *testing.T) {
	fake := &fakeS3{out: &s3.ListObjectsV2Output{KeyCount: aws.Int32(1)}}
	p := newS3Prober(fake, nil)

	dir, err := p.IsDirectory(context.Background(), s3Object("team/data"))
	require.NoError(t, err)
	assert.True(t, dir)

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, "b", aws.ToString(in.Bucket))
	assert.Equal(t, "team/data/", aws.ToString(in.Prefix))
	assert.Equal(t, "/", aws.ToString(in.Delimiter))
	assert.Equal(t, int32(1), aws.ToInt32(in.MaxKeys))
}

func TestS3Prober_CommonPrefixOnly(t *testing.T) {
	fake := &fakeS3{out: &s3.ListObjectsV2Output{
		CommonPrefixes: []s3types.CommonPrefix{{Prefix: aws.String("team/data/sub/")}},
	}}
	dir, err := newS3Prober(fake, nil).IsDirectory(context.Background(), s3Object("team/data/"))
	require.NoError(t, err)
	assert.True(t, dir)
}

func TestS3Prober_PlainObject(t *testing.T) {
	fake := &fakeS3{out: &s3.ListObjectsV2Output{KeyCount: aws.Int32(0)}}
	dir, err := newS3Prober(fake, nil).IsDirectory(context.Background(), s3Object("report.csv"))
	require.NoError(t, err)
	assert.False(t, dir)
}

func TestS3Prober_HintSkipsRequest(t *testing.T) {
	fake := &fakeS3{}
	r := s3Object("x")
	r.Directory = boolPtr(false)

	dir, err := newS3Prober(fake, nil).IsDirectory(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, dir)
	assert.Empty(t, fake.inputs)
}

func TestS3Prober_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.ErrorCode
	}{
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}, errors.ErrCodeMountAccessDenied},
		{"no such bucket", &s3types.NoSuchBucket{}, errors.ErrCodeMountTargetNotFound},
		{"network", fmt.Errorf("dial tcp: i/o timeout"), errors.ErrCodeProbeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newS3Prober(&fakeS3{err: tt.err}, nil).IsDirectory(context.Background(), s3Object("team"))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.want))
		})
	}
}

func TestHintProber(t *testing.T) {
	r := types.Resource{Kind: types.KindGCSObject, Bucket: "b", Object: "o"}
	_, err := HintProber{}.IsDirectory(context.Background(), r)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeProbeFailed))

	r.Directory = boolPtr(true)
	dir, err := HintProber{}.IsDirectory(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, dir)
}

func TestCloudProber_Dispatch(t *testing.T) {
	fake := &fakeS3{out: &s3.ListObjectsV2Output{KeyCount: aws.Int32(1)}}
	p := CloudProber{S3: newS3Prober(fake, nil)}

	dir, err := p.IsDirectory(context.Background(), s3Object("team"))
	require.NoError(t, err)
	assert.True(t, dir)
	assert.Len(t, fake.inputs, 1)

	// GCS falls back to the catalog hint.
	_, err = p.IsDirectory(context.Background(), types.Resource{Kind: types.KindGCSObject, Object: "o"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeProbeFailed))
}
