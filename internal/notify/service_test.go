package notify

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/gmsas95/medwatch/internal/errors"
	"github.com/gmsas95/medwatch/internal/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	calls  []*push.Message
	failOn map[string]bool
	err    error
}

func (f *fakeTransport) SendMulticast(ctx context.Context, msg *push.Message) (*push.BatchResponse, error) {
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}
	resp := &push.BatchResponse{}
	for _, tok := range msg.Tokens {
		if f.failOn[tok] {
			resp.FailureCount++
			resp.Responses = append(resp.Responses, push.SendResult{Token: tok, Err: stderrors.New("unregistered")})
			continue
		}
		resp.SuccessCount++
		resp.Responses = append(resp.Responses, push.SendResult{Token: tok, MessageID: "m-" + tok})
	}
	return resp, nil
}

type observed struct {
	source string
	counts Counts
	err    error
}

type fakeObserver struct{ seen []observed }

func (o *fakeObserver) ObserveDispatch(source string, c Counts, err error) {
	o.seen = append(o.seen, observed{source, c, err})
}

func newTestService(tr push.Transport, obs Observer) *Service {
	logger := zap.NewNop()
	return NewService(NewDispatcher(tr, obs, logger), logger)
}

var caller = &Caller{UID: "cg1"}

func TestSend_Unauthenticated(t *testing.T) {
	tr := &fakeTransport{}
	svc := newTestService(tr, nil)

	for _, c := range []*Caller{nil, {}} {
		_, err := svc.SendCaregiverNotification(context.Background(), c, Request{Tokens: []string{"a"}})
		assert.ErrorIs(t, err, errors.ErrUnauthenticated)
		assert.Equal(t, errors.CodeUnauthenticated, errors.GetCode(err))
	}
	assert.Empty(t, tr.calls)
}

func TestSend_NoTokens(t *testing.T) {
	tr := &fakeTransport{}
	svc := newTestService(tr, nil)

	res, err := svc.SendCaregiverNotification(context.Background(), caller, Request{Tokens: []string{}, Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, &Result{Success: true, Sent: 0}, res)
	assert.Empty(t, tr.calls)
}

func TestSend_NoTokensSkipsValidation(t *testing.T) {
	tr := &fakeTransport{}
	svc := newTestService(tr, nil)

	res, err := svc.SendCaregiverNotification(context.Background(), caller, Request{Title: strings.Repeat("x", 300)})
	require.NoError(t, err)
	assert.Equal(t, &Result{Success: true, Sent: 0}, res)
	assert.Empty(t, tr.calls)
}

func TestSend_OversizedTitleWithTokens(t *testing.T) {
	tr := &fakeTransport{}
	svc := newTestService(tr, nil)

	_, err := svc.SendCaregiverNotification(context.Background(), caller, Request{
		Tokens: []string{"a"},
		Title:  strings.Repeat("x", 300),
	})
	assert.Equal(t, errors.CodeInvalidArgument, errors.GetCode(err))
	assert.Empty(t, tr.calls)
}

func TestSend_Counts(t *testing.T) {
	tr := &fakeTransport{failOn: map[string]bool{"b": true}}
	obs := &fakeObserver{}
	svc := newTestService(tr, obs)

	res, err := svc.SendCaregiverNotification(context.Background(), caller, Request{
		Tokens:           []string{"a", "b", "c"},
		Title:            "Reminder",
		Body:             "Time for Metformin",
		NotificationData: map[string]string{"type": "reminder"},
	})
	require.NoError(t, err)
	assert.Equal(t, &Result{Success: true, Sent: 2, Failed: 1}, res)

	require.Len(t, tr.calls, 1)
	assert.Equal(t, "Reminder", tr.calls[0].Title)
	assert.Equal(t, "reminder", tr.calls[0].Data["type"])

	require.Len(t, obs.seen, 1)
	assert.Equal(t, SourceOnDemand, obs.seen[0].source)
	assert.Equal(t, Counts{Sent: 2, Failed: 1}, obs.seen[0].counts)
}

func TestSend_NilDataBecomesEmptyMap(t *testing.T) {
	tr := &fakeTransport{}
	svc := newTestService(tr, nil)

	_, err := svc.SendCaregiverNotification(context.Background(), caller, Request{Tokens: []string{"a"}})
	require.NoError(t, err)
	require.Len(t, tr.calls, 1)
	assert.NotNil(t, tr.calls[0].Data)
}

func TestSend_DispatchFailure(t *testing.T) {
	tr := &fakeTransport{err: stderrors.New("quota exceeded")}
	obs := &fakeObserver{}
	svc := newTestService(tr, obs)

	_, err := svc.SendCaregiverNotification(context.Background(), caller, Request{Tokens: []string{"a"}})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInternal, errors.GetCode(err))
	assert.Contains(t, err.Error(), "quota exceeded")

	require.Len(t, obs.seen, 1)
	assert.Error(t, obs.seen[0].err)
}

func TestSend_InvalidToken(t *testing.T) {
	tr := &fakeTransport{}
	svc := newTestService(tr, nil)

	_, err := svc.SendCaregiverNotification(context.Background(), caller, Request{Tokens: []string{"a", ""}})
	assert.Equal(t, errors.CodeInvalidArgument, errors.GetCode(err))
	assert.Empty(t, tr.calls)
}

func TestDispatch_EmptyTokensSkipsTransport(t *testing.T) {
	tr := &fakeTransport{}
	obs := &fakeObserver{}
	d := NewDispatcher(tr, obs, zap.NewNop())

	c, err := d.Dispatch(context.Background(), SourceDetector, &push.Message{})
	require.NoError(t, err)
	assert.Equal(t, Counts{}, c)
	assert.Empty(t, tr.calls)
	assert.Empty(t, obs.seen)
}
