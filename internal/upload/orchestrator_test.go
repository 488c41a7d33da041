package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditflow/internal/domain"
	"auditflow/internal/statemachine"
)

type fakeBackend struct {
	mu            sync.Mutex
	calls         []string
	negotiateErr  map[string]error
	confirmErr    map[string]error
	confirmStatus domain.DocumentState
	names         map[string]string
	seq           int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		negotiateErr:  map[string]error{},
		confirmErr:    map[string]error{},
		confirmStatus: domain.DocumentReady,
		names:         map[string]string{},
	}
}

func (b *fakeBackend) NegotiateUpload(_ context.Context, req domain.UploadRequest) (domain.UploadTarget, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if req.DocumentID != "" {
		b.calls = append(b.calls, "renegotiate:"+req.DocumentID)
	} else {
		b.calls = append(b.calls, "negotiate:"+req.FileName)
	}
	if err := b.negotiateErr[req.FileName]; err != nil {
		return domain.UploadTarget{}, err
	}
	id := req.DocumentID
	if id == "" {
		b.seq++
		id = fmt.Sprintf("doc-%d", b.seq)
	}
	b.names[id] = req.FileName
	return domain.UploadTarget{UploadURL: "mem://uploads/" + id, DocumentID: id}, nil
}

func (b *fakeBackend) ConfirmUpload(_ context.Context, id string) (domain.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := b.names[id]
	b.calls = append(b.calls, "confirm:"+name)
	if err := b.confirmErr[name]; err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: id, Name: name, Status: b.confirmStatus, Extension: domain.Extension(name)}, nil
}

func (b *fakeBackend) FailUpload(_ context.Context, id, reason string) (domain.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := b.names[id]
	b.calls = append(b.calls, "fail:"+name)
	return domain.Document{ID: id, Name: name, Status: domain.DocumentError, ErrorMessage: domain.Ptr(reason)}, nil
}

// chunkTransfer reads the body in `chunks` even pieces, like a throttled network.
type chunkTransfer struct {
	mu     sync.Mutex
	chunks int
	fail   map[string]error
	calls  []string
}

func (c *chunkTransfer) Transfer(_ context.Context, url string, body io.Reader, size int64, _ string) error {
	c.mu.Lock()
	c.calls = append(c.calls, "transfer:"+url)
	err := c.fail[url]
	c.mu.Unlock()
	if err != nil {
		return err
	}
	step := size / int64(c.chunks)
	if step == 0 {
		step = 1
	}
	buf := make([]byte, step)
	for {
		_, rerr := io.ReadFull(body, buf)
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 200))
	assert.Equal(t, 50, Percent(100, 200))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(250, 200))
	assert.Equal(t, 0, Percent(-5, 200))
	assert.Equal(t, 100, Percent(0, 0))
}

func TestUploadFile_PhasesInOrderWithProgress(t *testing.T) {
	backend := newFakeBackend()
	transfer := &chunkTransfer{chunks: 20}
	o := New(backend, transfer)

	data := []byte(strings.Repeat("x", 1000))
	var events []Progress
	doc, err := o.UploadFile(context.Background(), FromBytes("Q4_Financials.pdf", data),
		Meta{CompanyID: "c1", Type: domain.TypeFinancialReport},
		func(p Progress) { events = append(events, p) })
	require.NoError(t, err)

	assert.Equal(t, domain.DocumentReady, doc.Status)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, []string{"negotiate:Q4_Financials.pdf", "confirm:Q4_Financials.pdf"}, backend.calls)

	require.Len(t, events, 20)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percentage, events[i-1].Percentage)
		assert.GreaterOrEqual(t, events[i].Loaded, events[i-1].Loaded)
	}
	last := events[len(events)-1]
	assert.Equal(t, 100, last.Percentage)
	assert.Equal(t, int64(1000), last.Loaded)
	assert.Equal(t, int64(1000), last.Total)
	assert.Equal(t, 5, events[0].Percentage)
}

func TestUploadFile_UnevenChunksStillEndAtHundred(t *testing.T) {
	o := New(newFakeBackend(), &chunkTransfer{chunks: 7})
	var events []Progress
	_, err := o.UploadFile(context.Background(), FromBytes("a.pdf", make([]byte, 1001)), Meta{CompanyID: "c1"},
		func(p Progress) { events = append(events, p) })
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, 100, events[len(events)-1].Percentage)
	for _, e := range events {
		assert.Equal(t, Percent(e.Loaded, e.Total), e.Percentage)
	}
}

func TestUploadFile_EmptyFileReportsHundred(t *testing.T) {
	o := New(newFakeBackend(), &chunkTransfer{chunks: 4})
	var events []Progress
	_, err := o.UploadFile(context.Background(), FromBytes("empty.txt", nil), Meta{CompanyID: "c1"},
		func(p Progress) { events = append(events, p) })
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 100, events[0].Percentage)
}

func TestUploadFile_ProcessingIsSuccess(t *testing.T) {
	backend := newFakeBackend()
	backend.confirmStatus = domain.DocumentProcessing
	doc, err := New(backend, &chunkTransfer{chunks: 2}).UploadFile(context.Background(), FromBytes("a.pdf", []byte("ab")), Meta{}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentProcessing, doc.Status)
}

func TestUploadFile_NegotiationFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.negotiateErr["a.pdf"] = errors.New("connection refused")
	transfer := &chunkTransfer{chunks: 2}

	doc, err := New(backend, transfer).UploadFile(context.Background(), FromBytes("a.pdf", []byte("ab")), Meta{CompanyID: "c1"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNegotiation)
	assert.Equal(t, domain.DocumentError, doc.Status)
	require.NotNil(t, doc.ErrorMessage)
	assert.Contains(t, *doc.ErrorMessage, "connection refused")
	assert.Empty(t, transfer.calls, "no transfer without a target")
	assert.Equal(t, []string{"negotiate:a.pdf"}, backend.calls, "no automatic retry")

	var perr *PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, PhaseNegotiate, perr.Phase)
}

func TestUploadFile_TransferFailureSkipsConfirm(t *testing.T) {
	backend := newFakeBackend()
	transfer := &chunkTransfer{chunks: 2, fail: map[string]error{"mem://uploads/doc-1": errors.New("503")}}

	doc, err := New(backend, transfer).UploadFile(context.Background(), FromBytes("a.pdf", []byte("ab")), Meta{}, nil)
	assert.ErrorIs(t, err, ErrTransfer)
	assert.Equal(t, domain.DocumentError, doc.Status)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, []string{"negotiate:a.pdf", "fail:a.pdf"}, backend.calls, "the negotiated document is released, never confirmed")
}

func TestUploadFile_ReleasesDocumentWhenContextCancelled(t *testing.T) {
	backend := newFakeBackend()
	ctx, cancel := context.WithCancel(context.Background())
	transfer := &chunkTransfer{chunks: 2, fail: map[string]error{"mem://uploads/doc-1": context.Canceled}}
	cancel()

	_, err := New(backend, transfer).UploadFile(ctx, FromBytes("a.pdf", []byte("ab")), Meta{}, nil)
	assert.ErrorIs(t, err, ErrTransfer)
	assert.Contains(t, backend.calls, "fail:a.pdf")
}

func TestUploadFile_ConfirmRejected(t *testing.T) {
	backend := newFakeBackend()
	backend.confirmStatus = domain.DocumentError
	_, err := New(backend, &chunkTransfer{chunks: 2}).UploadFile(context.Background(), FromBytes("a.pdf", []byte("ab")), Meta{}, nil)
	assert.ErrorIs(t, err, ErrConfirm)
}

func TestUploadBatch_SettlesAll(t *testing.T) {
	backend := newFakeBackend()
	backend.confirmErr["two.pdf"] = errors.New("object missing")
	o := New(backend, &chunkTransfer{chunks: 5})

	set := NewDocumentSet([]domain.Document{{ID: "d0", Name: "old.pdf", Status: domain.DocumentReady}})
	items := []Item{
		{File: FromBytes("one.pdf", []byte("11111")), Meta: Meta{CompanyID: "c1", Type: domain.TypePolicy}},
		{File: FromBytes("two.pdf", []byte("22222")), Meta: Meta{CompanyID: "c1", Type: domain.TypePolicy}},
		{File: FromBytes("three.pdf", []byte("33333")), Meta: Meta{CompanyID: "c1", Type: domain.TypePolicy}},
	}

	var res BatchResult
	require.NotPanics(t, func() { res = o.UploadBatch(context.Background(), set, items) })
	require.Len(t, res.Results, 3)

	assert.NoError(t, res.Results[0].Err)
	assert.Equal(t, domain.DocumentReady, res.Results[0].Document.Status)
	assert.ErrorIs(t, res.Results[1].Err, ErrConfirm)
	assert.Equal(t, domain.DocumentError, res.Results[1].Document.Status)
	assert.NoError(t, res.Results[2].Err)
	assert.Equal(t, domain.DocumentReady, res.Results[2].Document.Status)

	failures := res.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "two.pdf", failures[0].File)

	statuses := map[string]domain.DocumentState{}
	for _, d := range set.Snapshot() {
		statuses[d.Name] = d.Status
	}
	assert.Equal(t, map[string]domain.DocumentState{
		"old.pdf":   domain.DocumentReady,
		"one.pdf":   domain.DocumentReady,
		"two.pdf":   domain.DocumentError,
		"three.pdf": domain.DocumentReady,
	}, statuses)
	assert.True(t, set.Busy())
}

func TestUploadBatch_ConcurrencyLimit(t *testing.T) {
	o := New(newFakeBackend(), &chunkTransfer{chunks: 1}, WithConcurrency(1))
	res := o.UploadBatch(context.Background(), nil, []Item{
		{File: FromBytes("a.pdf", []byte("a"))},
		{File: FromBytes("b.pdf", []byte("b"))},
	})
	assert.Empty(t, res.Failures())
}

func TestRetry_RenegotiatesFailedEntry(t *testing.T) {
	backend := newFakeBackend()
	backend.negotiateErr["a.pdf"] = errors.New("down")
	o := New(backend, &chunkTransfer{chunks: 2})
	set := NewDocumentSet(nil)

	res := o.UploadBatch(context.Background(), set, []Item{{File: FromBytes("a.pdf", []byte("ab")), Meta: Meta{CompanyID: "c1"}}})
	require.Len(t, res.Failures(), 1)
	localID := res.Results[0].LocalID

	backend.mu.Lock()
	delete(backend.negotiateErr, "a.pdf")
	backend.mu.Unlock()

	doc, err := o.Retry(context.Background(), set, localID)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentReady, doc.Status)
	assert.Equal(t, []string{"negotiate:a.pdf", "negotiate:a.pdf", "confirm:a.pdf"}, backend.calls)

	e, ok := set.Get(localID)
	require.True(t, ok)
	assert.IsType(t, Committed{}, e)
	assert.False(t, set.Busy())
}

func TestRetry_ReusesNegotiatedDocument(t *testing.T) {
	backend := newFakeBackend()
	transfer := &chunkTransfer{chunks: 2, fail: map[string]error{"mem://uploads/doc-1": errors.New("connection reset")}}
	o := New(backend, transfer)
	set := NewDocumentSet(nil)

	res := o.UploadBatch(context.Background(), set, []Item{{File: FromBytes("a.pdf", []byte("ab")), Meta: Meta{CompanyID: "c1"}}})
	require.Len(t, res.Failures(), 1)
	localID := res.Results[0].LocalID

	transfer.mu.Lock()
	delete(transfer.fail, "mem://uploads/doc-1")
	transfer.mu.Unlock()

	doc, err := o.Retry(context.Background(), set, localID)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID, "no second backend document")
	assert.Equal(t, []string{"negotiate:a.pdf", "fail:a.pdf", "renegotiate:doc-1", "confirm:a.pdf"}, backend.calls)
	assert.Len(t, set.Snapshot(), 1)
	assert.False(t, set.Busy())
}

func TestRetry_DeniedForCommittedEntry(t *testing.T) {
	o := New(newFakeBackend(), &chunkTransfer{chunks: 2})
	set := NewDocumentSet([]domain.Document{{ID: "d1", Status: domain.DocumentReady}})
	_, err := o.Retry(context.Background(), set, "d1")
	var denied *statemachine.TransitionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "READY", denied.From)

	_, err = o.Retry(context.Background(), set, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
