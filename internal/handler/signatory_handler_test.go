package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/campus-ops/clearance-api/internal/dto"
	"github.com/campus-ops/clearance-api/internal/middleware"
	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/internal/service"
	appErrors "github.com/campus-ops/clearance-api/pkg/errors"
)

type fakeDecisionSrv struct {
	resp       *dto.DecideResponse
	err        error
	lastParams service.DecideParams
	resetErr   error
	resetCalls int
}

func (f *fakeDecisionSrv) Decide(_ context.Context, params service.DecideParams) (*dto.DecideResponse, error) {
	f.lastParams = params
	return f.resp, f.err
}

func (f *fakeDecisionSrv) ResetSlot(_ context.Context, formID, slotID string) error {
	f.resetCalls++
	return f.resetErr
}

type fakeQueueSrv struct {
	items        []dto.PendingQueueItem
	err          error
	invalidated  int
	seenFormID   string
	seenActorID  string
	markSeenErr  error
	lastPage     int
	lastPageSize int
}

func (f *fakeQueueSrv) PendingQueue(_ context.Context, signatoryID string, page, perPage int) ([]dto.PendingQueueItem, *models.Pagination, error) {
	f.lastPage = page
	f.lastPageSize = perPage
	return f.items, models.NewPagination(1, 20, len(f.items)), f.err
}

func (f *fakeQueueSrv) MarkSeen(_ context.Context, formID, signatoryID string) error {
	f.seenFormID = formID
	f.seenActorID = signatoryID
	return f.markSeenErr
}

func (f *fakeQueueSrv) InvalidateQueues(context.Context) {
	f.invalidated++
}

func signatoryTestContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.Claims{UserID: "sig-1", Role: models.RoleSignatory})
	return c, rec
}

func TestSignatoryHandlerDecide(t *testing.T) {
	decisions := &fakeDecisionSrv{resp: &dto.DecideResponse{FormStatus: models.FormStatusInProgress}}
	queue := &fakeQueueSrv{}
	handler := NewSignatoryHandler(decisions, queue)

	c, rec := signatoryTestContext(t, http.MethodPost, "/forms/form-1/decision",
		[]byte(`{"decision":"approved","remarks":"ok"}`))
	c.Params = gin.Params{{Key: "id", Value: "form-1"}}

	handler.Decide(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "form-1", decisions.lastParams.FormID)
	assert.Equal(t, "sig-1", decisions.lastParams.ActorID)
	assert.Equal(t, models.DecisionApprove, decisions.lastParams.Decision)
	assert.Equal(t, 1, queue.invalidated)
}

func TestSignatoryHandlerDecideConflict(t *testing.T) {
	decisions := &fakeDecisionSrv{err: appErrors.ErrAlreadyDecided}
	queue := &fakeQueueSrv{}
	handler := NewSignatoryHandler(decisions, queue)

	c, rec := signatoryTestContext(t, http.MethodPost, "/forms/form-1/decision",
		[]byte(`{"decision":"disapproved"}`))
	c.Params = gin.Params{{Key: "id", Value: "form-1"}}

	handler.Decide(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "ALREADY_DECIDED")
	assert.Equal(t, 0, queue.invalidated)
}

func TestSignatoryHandlerDecideInvalidPayload(t *testing.T) {
	handler := NewSignatoryHandler(&fakeDecisionSrv{}, &fakeQueueSrv{})

	c, rec := signatoryTestContext(t, http.MethodPost, "/forms/form-1/decision", []byte(`{`))
	c.Params = gin.Params{{Key: "id", Value: "form-1"}}

	handler.Decide(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignatoryHandlerQueue(t *testing.T) {
	queue := &fakeQueueSrv{items: []dto.PendingQueueItem{{StudentName: "Juan Cruz"}}}
	handler := NewSignatoryHandler(&fakeDecisionSrv{}, queue)

	c, rec := signatoryTestContext(t, http.MethodGet, "/signatory/queue?page=2&per_page=10", nil)

	handler.Queue(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, queue.lastPage)
	assert.Equal(t, 10, queue.lastPageSize)
	assert.Contains(t, rec.Body.String(), "Juan Cruz")
}

func TestSignatoryHandlerMarkSeen(t *testing.T) {
	queue := &fakeQueueSrv{}
	handler := NewSignatoryHandler(&fakeDecisionSrv{}, queue)

	c, rec := signatoryTestContext(t, http.MethodPost, "/forms/form-1/seen", nil)
	c.Params = gin.Params{{Key: "id", Value: "form-1"}}

	handler.MarkSeen(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "form-1", queue.seenFormID)
	assert.Equal(t, "sig-1", queue.seenActorID)
}

func TestSignatoryHandlerResetSlotRequiresReason(t *testing.T) {
	decisions := &fakeDecisionSrv{}
	handler := NewSignatoryHandler(decisions, &fakeQueueSrv{})

	c, rec := signatoryTestContext(t, http.MethodPost, "/forms/form-1/slots/slot-1/reset", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "form-1"}, {Key: "slotId", Value: "slot-1"}}

	handler.ResetSlot(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, decisions.resetCalls)
}

func TestSignatoryHandlerResetSlot(t *testing.T) {
	decisions := &fakeDecisionSrv{}
	queue := &fakeQueueSrv{}
	handler := NewSignatoryHandler(decisions, queue)

	c, rec := signatoryTestContext(t, http.MethodPost, "/forms/form-1/slots/slot-1/reset",
		[]byte(`{"reason":"clerical error"}`))
	c.Params = gin.Params{{Key: "id", Value: "form-1"}, {Key: "slotId", Value: "slot-1"}}

	handler.ResetSlot(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, decisions.resetCalls)
	assert.Equal(t, 1, queue.invalidated)
}
