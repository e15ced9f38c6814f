package retrieve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structmine/docbatch/constants"
	"github.com/structmine/docbatch/internal/poll"
)

type fakeContentClient struct {
	files map[string]string
}

func (f *fakeContentClient) FileContent(_ context.Context, fileID string) ([]byte, error) {
	content, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("no such file")
	}
	return []byte(content), nil
}

func outputLineFor(customID, text string) string {
	return `{"id":"resp_` + customID + `","custom_id":"` + customID +
		`","response":{"status_code":200,"body":{"choices":[{"message":{"content":"` + text + `"}}]}},"error":null}`
}

func TestRetrieveSkipsMalformedLines(t *testing.T) {
	lines := []string{
		outputLineFor("doc-chunk-0", "zero"),
		outputLineFor("doc-chunk-1", "one"),
		`{definitely not json`,
		outputLineFor("doc-chunk-2", "two"),
	}
	api := &fakeContentClient{files: map[string]string{"file_out": strings.Join(lines, "\n")}}
	r := NewRetriever(api, nil)

	recs, err := r.Retrieve(context.Background(), poll.Snapshot{
		BatchID:      "batch_1",
		Status:       constants.BatchStatusCompleted,
		OutputFileID: "file_out",
	})
	require.NoError(t, err, "a malformed line is never an exception")
	require.Len(t, recs, 3)
	assert.Equal(t, "doc-chunk-0", recs[0].CustomID)
	assert.Equal(t, "doc-chunk-2", recs[2].CustomID)
	assert.NotEmpty(t, recs[0].Response)
	assert.NotEmpty(t, recs[0].Raw)
}

func TestRetrieveErrorFileOnlyIsEmptyNotFatal(t *testing.T) {
	api := &fakeContentClient{files: map[string]string{
		"file_err": `{"id":"resp_1","custom_id":"doc-chunk-0","error":{"message":"model refused"}}`,
	}}
	r := NewRetriever(api, nil)

	recs, err := r.Retrieve(context.Background(), poll.Snapshot{
		BatchID:     "batch_1",
		Status:      constants.BatchStatusCompleted,
		ErrorFileID: "file_err",
	})
	require.NoError(t, err, "all-failed batches are an expected completion mode")
	assert.Empty(t, recs)
}

func TestRetrieveErrorFileDownloadFailureIsSwallowed(t *testing.T) {
	api := &fakeContentClient{files: map[string]string{}}
	r := NewRetriever(api, nil)

	recs, err := r.Retrieve(context.Background(), poll.Snapshot{
		BatchID:     "batch_1",
		ErrorFileID: "file_gone",
	})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRetrieveDownloadFailureSurfaces(t *testing.T) {
	api := &fakeContentClient{files: map[string]string{}}
	r := NewRetriever(api, nil)

	_, err := r.Retrieve(context.Background(), poll.Snapshot{
		BatchID:      "batch_1",
		OutputFileID: "file_gone",
	})
	require.Error(t, err, "a failed output download is reported so the next run retries")
}

func TestRetrieveNoFilesAtAll(t *testing.T) {
	r := NewRetriever(&fakeContentClient{}, nil)
	recs, err := r.Retrieve(context.Background(), poll.Snapshot{BatchID: "batch_1"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
