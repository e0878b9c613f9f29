package call

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/domain"
	callService "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/internal/service/call"
	apperrors "github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/errors"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/logger"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/pagination"
	"github.com/PARANDHAMAREDDYBOMMAKA/realtime-chat-application-sub000/pkg/response"
)

// Handler handles call lifecycle HTTP requests
type Handler struct {
	callService *callService.Service
}

// NewHandler creates a new call handler
func NewHandler(svc *callService.Service) *Handler {
	return &Handler{
		callService: svc,
	}
}

// RegisterRoutes mounts the call routes on an authenticated group.
// initiateGuards run before InitiateCall only (e.g. rate limiting).
func (h *Handler) RegisterRoutes(v1 *gin.RouterGroup, initiateGuards ...gin.HandlerFunc) {
	calls := v1.Group("/calls")
	{
		calls.POST("", append(initiateGuards, h.InitiateCall)...)
		calls.GET("/active", h.GetActiveCall)
		calls.GET("/incoming", h.GetIncomingCall)
		calls.GET("/history", h.GetCallHistory)
		calls.GET("/:id", h.GetCallStatus)
		calls.POST("/:id/join", h.JoinCall)
		calls.POST("/:id/leave", h.LeaveCall)
		calls.POST("/:id/decline", h.DeclineCall)
		calls.PUT("/:id/media", h.UpdateMediaState)
		calls.POST("/:id/peer-connections", h.CreatePeerConnection)
		calls.GET("/:id/peer-connections", h.GetPeerConnections)
	}
	v1.PATCH("/peer-connections/:id", h.UpdatePeerConnection)
}

// InitiateCallRequest represents call initiation request
type InitiateCallRequest struct {
	Type           string   `json:"type" binding:"required,oneof=audio video"`
	ParticipantIDs []string `json:"participant_ids"`
	RoomID         *string  `json:"room_id"`
	ConversationID *string  `json:"conversation_id"`
}

// InitiateCallResponse is returned for a created call
type InitiateCallResponse struct {
	CallID     uuid.UUID    `json:"call_id"`
	Call       *domain.Call `json:"call"`
	InvitedIDs []uuid.UUID  `json:"invited_ids"`
}

// InitiateCall starts a new call
// POST /v1/calls
func (h *Handler) InitiateCall(c *gin.Context) {
	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	roomID, err := parseOptionalUUID(req.RoomID)
	if err != nil {
		response.ValidationError(c, "Invalid room ID")
		return
	}
	conversationID, err := parseOptionalUUID(req.ConversationID)
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	participantIDs := make([]uuid.UUID, 0, len(req.ParticipantIDs))
	for _, idStr := range req.ParticipantIDs {
		id, err := uuid.Parse(idStr)
		if err != nil {
			response.ValidationError(c, "Invalid participant ID: "+idStr)
			return
		}
		participantIDs = append(participantIDs, id)
	}

	output, err := h.callService.InitiateCall(c.Request.Context(), &callService.InitiateCallInput{
		CallerID:       currentUserID(c),
		Type:           domain.CallType(req.Type),
		ParticipantIDs: participantIDs,
		RoomID:         roomID,
		ConversationID: conversationID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, InitiateCallResponse{
		CallID:     output.CallID,
		Call:       output.Call,
		InvitedIDs: output.InvitedIDs,
	})
}

// MediaStateRequest carries audio/video toggles
type MediaStateRequest struct {
	Audio *bool `json:"audio" binding:"required"`
	Video *bool `json:"video" binding:"required"`
}

func (r MediaStateRequest) toDomain() domain.MediaState {
	return domain.MediaState{Audio: *r.Audio, Video: *r.Video}
}

// JoinCall joins a ringing or active call
// POST /v1/calls/:id/join
func (h *Handler) JoinCall(c *gin.Context) {
	callID, ok := pathUUID(c, "Invalid call ID")
	if !ok {
		return
	}

	var req MediaStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	participantID, err := h.callService.JoinCall(c.Request.Context(), callID, currentUserID(c), req.toDomain())
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"call_id":        callID,
		"participant_id": participantID,
	})
}

// LeaveCall leaves a call
// POST /v1/calls/:id/leave
func (h *Handler) LeaveCall(c *gin.Context) {
	callID, ok := pathUUID(c, "Invalid call ID")
	if !ok {
		return
	}

	if err := h.callService.LeaveCall(c.Request.Context(), callID, currentUserID(c)); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Left call",
		"call_id": callID,
	})
}

// DeclineCall declines a pending invitation
// POST /v1/calls/:id/decline
func (h *Handler) DeclineCall(c *gin.Context) {
	callID, ok := pathUUID(c, "Invalid call ID")
	if !ok {
		return
	}

	if err := h.callService.DeclineCall(c.Request.Context(), callID, currentUserID(c)); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Call declined",
		"call_id": callID,
	})
}

// UpdateMediaState updates the caller's audio/video toggles
// PUT /v1/calls/:id/media
func (h *Handler) UpdateMediaState(c *gin.Context) {
	callID, ok := pathUUID(c, "Invalid call ID")
	if !ok {
		return
	}

	var req MediaStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	media := req.toDomain()
	if err := h.callService.UpdateMediaState(c.Request.Context(), callID, currentUserID(c), media); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"call_id":     callID,
		"media_state": media,
	})
}

// GetActiveCall returns the caller's live call, if any
// GET /v1/calls/active?room_id=&conversation_id=
func (h *Handler) GetActiveCall(c *gin.Context) {
	roomID, conversationID, ok := contextQuery(c)
	if !ok {
		return
	}

	active, err := h.callService.GetActiveCall(c.Request.Context(), currentUserID(c), roomID, conversationID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"active_call": active})
}

// GetIncomingCall returns the newest unanswered ring
// GET /v1/calls/incoming
func (h *Handler) GetIncomingCall(c *gin.Context) {
	incoming, err := h.callService.GetIncomingCall(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"incoming_call": incoming})
}

// GetCallHistory lists ended calls
// GET /v1/calls/history?room_id=&conversation_id=&limit=
func (h *Handler) GetCallHistory(c *gin.Context) {
	roomID, conversationID, ok := contextQuery(c)
	if !ok {
		return
	}

	limit, err := pagination.ParseLimit(c.Query("limit"))
	if err != nil {
		response.ValidationError(c, "Invalid limit")
		return
	}

	calls, err := h.callService.GetCallHistory(c.Request.Context(), currentUserID(c), &callService.HistoryInput{
		RoomID:         roomID,
		ConversationID: conversationID,
		Limit:          limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"calls": calls})
}

// GetCallStatus retrieves call information
// GET /v1/calls/:id
func (h *Handler) GetCallStatus(c *gin.Context) {
	callID, ok := pathUUID(c, "Invalid call ID")
	if !ok {
		return
	}

	record, err := h.callService.GetCallStatus(c.Request.Context(), currentUserID(c), callID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if record == nil {
		response.NotFound(c, "Call not found")
		return
	}

	response.Success(c, http.StatusOK, record)
}

// CreatePeerConnectionRequest opens a signaling relay
type CreatePeerConnectionRequest struct {
	ToUserID string  `json:"to_user_id" binding:"required,uuid"`
	Offer    *string `json:"offer"`
}

// CreatePeerConnection opens a relay record towards another participant
// POST /v1/calls/:id/peer-connections
func (h *Handler) CreatePeerConnection(c *gin.Context) {
	callID, ok := pathUUID(c, "Invalid call ID")
	if !ok {
		return
	}

	var req CreatePeerConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	toUserID, err := uuid.Parse(req.ToUserID)
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	pc, err := h.callService.CreatePeerConnection(c.Request.Context(), callID, currentUserID(c), toUserID, req.Offer)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, pc)
}

// GetPeerConnections lists relay records the caller is a party of
// GET /v1/calls/:id/peer-connections
func (h *Handler) GetPeerConnections(c *gin.Context) {
	callID, ok := pathUUID(c, "Invalid call ID")
	if !ok {
		return
	}

	connections, err := h.callService.GetPeerConnections(c.Request.Context(), currentUserID(c), callID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"peer_connections": connections})
}

// UpdatePeerConnectionRequest patches a relay record
type UpdatePeerConnectionRequest struct {
	Answer       *string `json:"answer"`
	ICECandidate *string `json:"ice_candidate"`
	Status       *string `json:"status"`
}

// UpdatePeerConnection appends a candidate, sets the answer or the status
// PATCH /v1/peer-connections/:id
func (h *Handler) UpdatePeerConnection(c *gin.Context) {
	connectionID, ok := pathUUID(c, "Invalid peer connection ID")
	if !ok {
		return
	}

	var req UpdatePeerConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	input := &callService.UpdatePeerConnectionInput{
		ConnectionID: connectionID,
		Answer:       req.Answer,
		ICECandidate: req.ICECandidate,
	}
	if req.Status != nil {
		status := domain.PeerConnectionStatus(*req.Status)
		input.Status = &status
	}

	pc, err := h.callService.UpdatePeerConnection(c.Request.Context(), currentUserID(c), input)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, pc)
}

// fail logs server-side failures and writes the matching error response
func (h *Handler) fail(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr == nil || appErr.StatusCode >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Call request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	response.FromError(c, err)
}

// currentUserID returns the authenticated user, or uuid.Nil
func currentUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil
	}
	userID, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return userID
}

func pathUUID(c *gin.Context, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, message)
		return uuid.Nil, false
	}
	return id, true
}

func contextQuery(c *gin.Context) (roomID, conversationID *uuid.UUID, ok bool) {
	var err error
	if roomID, err = parseOptionalUUID(queryPtr(c, "room_id")); err != nil {
		response.ValidationError(c, "Invalid room ID")
		return nil, nil, false
	}
	if conversationID, err = parseOptionalUUID(queryPtr(c, "conversation_id")); err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return nil, nil, false
	}
	return roomID, conversationID, true
}

func queryPtr(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

func parseOptionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
