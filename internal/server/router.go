package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/diceledger/internal/rolls"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultHeartbeatInterval = 25 * time.Second

var errMissingRollService = errors.New("roll service dependency required")

// RollService is the roll ledger consumed by the HTTP layer.
type RollService interface {
	SubmitRoll(ctx context.Context, submission rolls.Submission) (rolls.SubmitResult, error)
	SearchRolls(ctx context.Context, filters rolls.SearchFilters) ([]rolls.RollRecord, error)
	GetRoll(ctx context.Context, rollID int64) (rolls.RollRecord, error)
	ListDieTypes(ctx context.Context) ([]rolls.DieType, error)
	Ping(ctx context.Context) error
}

type Dependencies struct {
	RollService       RollService
	Realtime          *RealtimeDispatcher
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.RollService == nil {
		return nil, errMissingRollService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	allowedOrigins := deps.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger))
	router.Use(corsMiddleware(allowedOrigins))

	handler := &httpHandler{
		rollService: deps.RollService,
		realtime:    realtime,
		heartbeat:   heartbeat,
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/dice", handler.handleListDieTypes)
	router.POST("/rolls", handler.handleSubmitRoll)
	router.GET("/rolls", handler.handleSearchRolls)
	router.GET("/rolls/stream", handler.handleRollStream)
	router.GET("/rolls/:id", handler.handleGetRoll)

	return router, nil
}

type httpHandler struct {
	rollService RollService
	realtime    *RealtimeDispatcher
	heartbeat   time.Duration
	logger      *zap.Logger
}

type submitRollPayload struct {
	Username      string `json:"username" form:"username"`
	Email         string `json:"email" form:"email"`
	CharacterName string `json:"character_name" form:"character_name"`
	URL           string `json:"url" form:"url"`
	Purpose       string `json:"purpose" form:"purpose"`
	Campaign      string `json:"campaign" form:"campaign"`
	SessionName   string `json:"session_name" form:"session_name"`
}

type dicePayload struct {
	BD int `json:"BD"`
	CD int `json:"CD"`
	LD int `json:"LD"`
	MD int `json:"MD"`
}

type submitRollResponse struct {
	RollID      int64       `json:"roll_id"`
	DiceResults dicePayload `json:"dice_results"`
	Timestamp   time.Time   `json:"timestamp"`
}

type rollPayload struct {
	RollID        int64       `json:"rollid"`
	UserID        int64       `json:"userid"`
	Username      string      `json:"username"`
	Email         *string     `json:"email,omitempty"`
	CharacterName string      `json:"character_name"`
	CampaignName  string      `json:"campaign_name"`
	SessionTitle  string      `json:"session_title"`
	Purpose       string      `json:"purpose"`
	URL           *string     `json:"url,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	DiceResults   dicePayload `json:"dice_results"`
}

type searchRollsResponse struct {
	Rolls  []rollPayload `json:"rolls"`
	Status string        `json:"status"`
}

type dieTypePayload struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Sides int    `json:"sides"`
}

type streamPayload struct {
	RollID        int64       `json:"rollid"`
	CharacterName string      `json:"character_name"`
	CampaignName  string      `json:"campaign_name"`
	DiceResults   dicePayload `json:"dice_results"`
	Timestamp     time.Time   `json:"timestamp"`
	Source        string      `json:"source"`
}

func (h *httpHandler) handleSubmitRoll(c *gin.Context) {
	var request submitRollPayload
	if err := c.ShouldBind(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	submission := rolls.Submission{
		Username:      request.Username,
		Email:         request.Email,
		CharacterName: request.CharacterName,
		URL:           request.URL,
		Purpose:       request.Purpose,
		Campaign:      request.Campaign,
		SessionName:   request.SessionName,
	}
	result, err := h.rollService.SubmitRoll(c.Request.Context(), submission)
	if err != nil {
		var missingErr *rolls.MissingFieldError
		if errors.As(err, &missingErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_fields", "fields": missingErr.Fields})
			return
		}
		h.logger.Error("failed to submit roll", zap.Error(err))
		h.writeServiceError(c, "roll_failed", err)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		EventType:     RealtimeEventRollSubmitted,
		RollID:        result.RollID,
		CharacterName: strings.TrimSpace(submission.CharacterName),
		CampaignName:  strings.TrimSpace(submission.Campaign),
		Dice:          result.Dice,
		Timestamp:     result.Timestamp,
	})

	c.JSON(http.StatusCreated, submitRollResponse{
		RollID:      result.RollID,
		DiceResults: toDicePayload(result.Dice),
		Timestamp:   result.Timestamp,
	})
}

func (h *httpHandler) handleSearchRolls(c *gin.Context) {
	var filters rolls.SearchFilters
	if raw := strings.TrimSpace(c.Query("roll_id")); raw != "" {
		rollID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_roll_id"})
			return
		}
		filters.RollID = &rollID
	}
	filters.CharacterName = c.Query("character")

	records, err := h.rollService.SearchRolls(c.Request.Context(), filters)
	if err != nil {
		h.logger.Error("failed to search rolls", zap.Error(err))
		h.writeServiceError(c, "search_failed", err)
		return
	}

	response := searchRollsResponse{Rolls: make([]rollPayload, 0, len(records)), Status: "ok"}
	for _, record := range records {
		response.Rolls = append(response.Rolls, toRollPayload(record))
	}
	if len(response.Rolls) == 0 {
		response.Status = "no_matches"
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetRoll(c *gin.Context) {
	rollID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_roll_id"})
		return
	}

	record, err := h.rollService.GetRoll(c.Request.Context(), rollID)
	if err != nil {
		if errors.Is(err, rolls.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("failed to load roll", zap.Int64("roll_id", rollID), zap.Error(err))
		h.writeServiceError(c, "lookup_failed", err)
		return
	}
	c.JSON(http.StatusOK, toRollPayload(record))
}

func (h *httpHandler) handleListDieTypes(c *gin.Context) {
	dieTypes, err := h.rollService.ListDieTypes(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list die types", zap.Error(err))
		h.writeServiceError(c, "dice_unavailable", err)
		return
	}
	payload := make([]dieTypePayload, 0, len(dieTypes))
	for _, dieType := range dieTypes {
		payload = append(payload, dieTypePayload{Code: dieType.Code, Name: dieType.Name, Sides: dieType.Sides})
	}
	c.JSON(http.StatusOK, gin.H{"dice": payload})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if err := h.rollService.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleRollStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, c.Query("campaign"))
	defer cleanup()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, streamPayload{
				RollID:        message.RollID,
				CharacterName: message.CharacterName,
				CampaignName:  message.CampaignName,
				DiceResults:   toDicePayload(message.Dice),
				Timestamp:     message.Timestamp,
				Source:        realtimeSourceBackend,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "timestamp": tick.UTC()})
			return true
		}
	})
}

func (h *httpHandler) writeServiceError(c *gin.Context, errorCode string, err error) {
	payload := gin.H{"error": errorCode}
	var persistenceErr *rolls.PersistenceError
	if errors.As(err, &persistenceErr) {
		payload["code"] = persistenceErr.Code()
	}
	c.JSON(http.StatusInternalServerError, payload)
}

func toDicePayload(values rolls.DiceValues) dicePayload {
	return dicePayload{BD: values.BD, CD: values.CD, LD: values.LD, MD: values.MD}
}

func toRollPayload(record rolls.RollRecord) rollPayload {
	return rollPayload{
		RollID:        record.RollID,
		UserID:        record.UserID,
		Username:      record.Username,
		Email:         record.Email,
		CharacterName: record.CharacterName,
		CampaignName:  record.CampaignName,
		SessionTitle:  record.SessionTitle,
		Purpose:       record.Purpose,
		URL:           record.URL,
		Timestamp:     record.Timestamp,
		DiceResults:   toDicePayload(record.Dice),
	}
}
