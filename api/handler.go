// Package api - REST API of the election backend
package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alwitt/ballotbox/election"
	"github.com/alwitt/ballotbox/models"
	"github.com/alwitt/goutils"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// maxRequestBodyBytes cap on accepted request bodies
const maxRequestBodyBytes = 1 << 20

// identityKey gin context key of the authenticated caller
const identityKey = "ballotbox.identity"

// RequestIDHeader header carrying the request ID
const RequestIDHeader = "X-Request-ID"

// ElectionListResponse response listing elections
type ElectionListResponse struct {
	Elections []models.ElectionView `json:"elections"`
}

// BallotListResponse response listing ballots
type BallotListResponse struct {
	Ballots []models.BallotView `json:"ballots"`
}

// Handler REST API handler
type Handler struct {
	goutils.RestAPIHandler
	manager election.ElectionManager
	auth    Authenticator
}

/*
NewHandler define a new REST API handler

	@param manager election.ElectionManager - election manager
	@param auth Authenticator - caller authenticator
	@param requestLogLevel goutils.HTTPRequestLogLevel - level of the per request access log
	@returns handler
*/
func NewHandler(
	manager election.ElectionManager,
	auth Authenticator,
	requestLogLevel goutils.HTTPRequestLogLevel,
) (*Handler, error) {
	if manager == nil || auth == nil {
		return nil, fmt.Errorf("api handler requires an election manager and an authenticator")
	}
	logTags := log.Fields{"package": "ballotbox", "module": "api", "component": "rest-handler"}
	requestIDHeader := RequestIDHeader
	return &Handler{
		RestAPIHandler: goutils.RestAPIHandler{
			Component: goutils.Component{
				LogTags: logTags,
				LogTagModifiers: []goutils.LogMetadataModifier{
					goutils.ModifyLogMetadataByRestRequestParam,
				},
			},
			CallRequestIDHeaderField: &requestIDHeader,
			DoNotLogHeaders:          map[string]bool{"Authorization": true},
			LogLevel:                 requestLogLevel,
		},
		manager: manager,
		auth:    auth,
	}, nil
}

/*
Router build the HTTP handler serving the API

Every request passes through the access log middleware, which assigns the request ID
and attaches the request parameters to the request context.

	@returns the router
*/
func (h *Handler) Router() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	h.registerRoutes(r)
	return h.LoggingMiddleware(r.ServeHTTP)
}

func (h *Handler) registerRoutes(r gin.IRouter) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	v1 := r.Group("/v1", h.authenticate())
	v1.POST("/election", h.requireAccountType(models.AccountTypeElectionCreator), h.createElection)
	v1.GET("/election/:title", h.getElection)
	v1.GET("/election/:title/ballots", h.listBallots)
	v1.GET("/election/:title/tally", h.tally)
	v1.GET("/elections", h.listElections)
	v1.POST("/vote", h.castVote)
	v1.GET("/ballot/:id", h.getBallot)
}

// ========================================================================================
// Middleware

// authenticate reject callers without a trusted identity
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := h.auth.Authenticate(c.Request)
		if err != nil {
			log.WithError(err).WithFields(h.GetLogTagsForContext(c.Request.Context())).
				Debug("Rejected unauthenticated request")
			writeError(c, err)
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

// requireAccountType reject callers of any other account type
func (h *Handler) requireAccountType(accountType models.AccountTypeENUMType) gin.HandlerFunc {
	return func(c *gin.Context) {
		if caller := callerOf(c); caller.AccountType != accountType {
			writeError(c, fmt.Errorf(
				"account type %s may not perform this operation [%w]", caller.AccountType, ErrForbidden,
			))
			return
		}
		c.Next()
	}
}

func callerOf(c *gin.Context) models.Identity {
	if val, ok := c.Get(identityKey); ok {
		if identity, ok := val.(models.Identity); ok {
			return identity
		}
	}
	return models.Identity{}
}

// decodeJSON decode a request body holding exactly one JSON object
func decodeJSON(c *gin.Context, out any) error {
	defer c.Request.Body.Close()
	body := io.LimitReader(c.Request.Body, maxRequestBodyBytes)
	if err := models.DecodeStrictJSON(body, out); err != nil {
		return fmt.Errorf("request body is not valid: %s [%w]", err.Error(), models.ErrMalformedInput)
	}
	return nil
}

// ========================================================================================
// Elections

func (h *Handler) createElection(c *gin.Context) {
	var request models.CreateElectionRequest
	if err := decodeJSON(c, &request); err != nil {
		writeError(c, err)
		return
	}
	created, err := h.manager.CreateElection(c.Request.Context(), request, callerOf(c).Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) getElection(c *gin.Context) {
	entry, err := h.manager.GetElection(c.Request.Context(), c.Param("title"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) listElections(c *gin.Context) {
	var state *models.ElectionStateENUMType
	if raw := strings.TrimSpace(c.Query("state")); raw != "" {
		parsed := models.ElectionStateENUMType(strings.ToUpper(raw))
		state = &parsed
	}
	entries, err := h.manager.ListElections(c.Request.Context(), state)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ElectionListResponse{Elections: entries})
}

func (h *Handler) tally(c *gin.Context) {
	result, err := h.manager.Tally(c.Request.Context(), c.Param("title"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ========================================================================================
// Ballots

func (h *Handler) castVote(c *gin.Context) {
	var request models.CastVoteRequest
	if err := decodeJSON(c, &request); err != nil {
		writeError(c, err)
		return
	}
	ballotID, err := h.manager.CastVote(c.Request.Context(), request, callerOf(c).Username)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.CastVoteResponse{BallotID: ballotID})
}

func (h *Handler) getBallot(c *gin.Context) {
	ballot, err := h.manager.GetBallot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ballot)
}

func (h *Handler) listBallots(c *gin.Context) {
	ballots, err := h.manager.ListBallots(c.Request.Context(), c.Param("title"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, BallotListResponse{Ballots: ballots})
}
