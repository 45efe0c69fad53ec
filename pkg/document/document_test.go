package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgendreau/aavegotchi-ptd/pkg/distribution"
	"github.com/pgendreau/aavegotchi-ptd/pkg/types"
)

func compileGolden(t *testing.T) *distribution.Result {
	t.Helper()
	rows := []types.InputRow{
		{Row: 1, Account: "0x1111111111111111111111111111111111111111", Amount: "1000000000000000000",
			Metadata: map[string]string{"wallet": "0x1111111111111111111111111111111111111111", "rewardRF": "0.4"}},
		{Row: 2, Account: "0x2222222222222222222222222222222222222222", Amount: "2500000000000000000"},
		{Row: 3, Account: "0x3333333333333333333333333333333333333333", Amount: "1"},
		{Row: 4, Account: "0x4444444444444444444444444444444444444444", Amount: "0"},
	}
	result, err := distribution.NewCompiler(distribution.DefaultOptions(), nil).Compile(rows)
	require.NoError(t, err)
	return result
}

func TestMarshal_Shape(t *testing.T) {
	data, err := Marshal(compileGolden(t).Document)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(data, []byte("}\n")))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "0x003b7244686c9908a56a01ce68781d590a133a733472488b15b0cc0ff3fdcdfc", raw["root"])
	assert.Equal(t, "minor", raw["unit"])
	assert.Equal(t, []interface{}{"address", "uint256"}, raw["leafEncoding"])

	claims := raw["claims"].(map[string]interface{})
	require.Len(t, claims, 3)
	first := claims["0x1111111111111111111111111111111111111111"].(map[string]interface{})
	assert.Equal(t, "0", first["index"], "index is a decimal string")
	assert.Equal(t, "1000000000000000000", first["amount"])
	assert.NotContains(t, first, "amountDisplay")
	assert.Len(t, first["proof"], 2)

	stats := raw["stats"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["includedWallets"])
	assert.Equal(t, float64(1), stats["skippedZeroAmountWallets"])
	assert.Equal(t, float64(4), stats["inputRows"])
	assert.Equal(t, "3500000000000000001", stats["totalAmount"])
}

func TestMarshal_Deterministic(t *testing.T) {
	a, err := Marshal(compileGolden(t).Document)
	require.NoError(t, err)
	b, err := Marshal(compileGolden(t).Document)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnmarshal(t *testing.T) {
	doc := compileGolden(t).Document
	data, err := Marshal(doc)
	require.NoError(t, err)

	parsed, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, doc, parsed)

	_, err = Unmarshal([]byte("  "))
	require.ErrorIs(t, err, types.ErrEmptyInput)

	_, err = Unmarshal([]byte(`{"root":"0x01","unit":"wei"}`))
	require.Error(t, err)

	_, err = Unmarshal([]byte(`{"unit":"minor","merkleRoot":"0x00"}`))
	require.Error(t, err, "unknown fields are rejected")

	_, err = Marshal(nil)
	require.Error(t, err)
}

func TestFileSink_WriteRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rounds", "7", "claims.json")
	sink := &FileSink{Path: path}

	doc := compileGolden(t).Document
	require.NoError(t, WriteDocument(ctx, sink, doc))

	loaded, err := ReadDocument(ctx, sink)
	require.NoError(t, err)
	assert.Equal(t, doc.Root, loaded.Root)

	// overwrite leaves no temp files behind
	require.NoError(t, WriteDocument(ctx, sink, doc))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "claims.json", entries[0].Name())
}

func TestFileSink_ReadMissing(t *testing.T) {
	_, err := ReadDocument(context.Background(), &FileSink{Path: filepath.Join(t.TempDir(), "nope.json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestWriteAudit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.json")
	require.NoError(t, WriteAudit(path, compileGolden(t).Audit))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var audit types.AuditLog
	require.NoError(t, json.Unmarshal(data, &audit))
	entry := audit["0x1111111111111111111111111111111111111111"]
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.Row)
	assert.Equal(t, "0.4", entry.Columns["rewardRF"])
}

type fakeObjectAPI struct {
	objects map[string][]byte
	putErr  error
	puts    []*s3.PutObjectInput
}

func (f *fakeObjectAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.objects[awsv2.ToString(in.Bucket)+"/"+awsv2.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[awsv2.ToString(in.Bucket)+"/"+awsv2.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestS3Sink(t *testing.T) {
	ctx := context.Background()
	api := &fakeObjectAPI{objects: map[string][]byte{}}
	sink := &S3Sink{Client: api, Bucket: "claims", Key: "rounds/7/claims.json"}
	assert.Equal(t, "s3://claims/rounds/7/claims.json", sink.String())

	doc := compileGolden(t).Document
	require.NoError(t, WriteDocument(ctx, sink, doc))
	require.Len(t, api.puts, 1)
	assert.Equal(t, "application/json", awsv2.ToString(api.puts[0].ContentType))

	loaded, err := ReadDocument(ctx, sink)
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)

	api.putErr = errors.New("AccessDenied")
	err = WriteDocument(ctx, sink, doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://claims/rounds/7/claims.json")
}

func TestNewSink_File(t *testing.T) {
	sink, err := NewSink(context.Background(), "out/claims.json", "", nil)
	require.NoError(t, err)
	assert.IsType(t, &FileSink{}, sink)

	_, err = NewSink(context.Background(), " ", "", nil)
	require.Error(t, err)

	_, err = NewSink(context.Background(), "s3://bucket-only", "", nil)
	require.Error(t, err)
}
