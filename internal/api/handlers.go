package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"alpaca-trading-bot/internal/alpaca"
	"alpaca-trading-bot/internal/lifecycle"
)

// handlePlaceOrder accepts a trading instruction and runs it through the full
// lifecycle. The request blocks until the entry fills and both exit legs are
// under supervision, so the client gets a complete acknowledgment or a
// definite failure.
func (s *Server) handlePlaceOrder(c *gin.Context) {
	var instr lifecycle.Instruction
	if err := c.ShouldBindJSON(&instr); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.orchestrator.PlaceOrder(c.Request.Context(), instr)
	if err != nil {
		s.respondOrderError(c, err)
		return
	}

	successResponse(c, http.StatusCreated, result)
}

// respondOrderError maps lifecycle errors onto HTTP status codes. The raw
// error text is passed through so broker rejection reasons reach the client.
func (s *Server) respondOrderError(c *gin.Context, err error) {
	var partial *lifecycle.PartialExitError

	switch {
	case errors.Is(err, lifecycle.ErrInvalidInstruction):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, lifecycle.ErrMarketClosed):
		errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrFillTimeout):
		errorResponse(c, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, lifecycle.ErrEntryTerminal):
		errorResponse(c, http.StatusConflict, err.Error())
	case errors.As(err, &partial):
		errorResponse(c, http.StatusBadGateway, err.Error())
	case alpaca.IsUnavailable(err):
		errorResponse(c, http.StatusBadGateway, err.Error())
	case alpaca.IsRejected(err):
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}

// handleGetRun returns the supervision snapshot for one run.
func (s *Server) handleGetRun(c *gin.Context) {
	runID := c.Param("run_id")

	sup := s.orchestrator.Supervisor(runID)
	if sup == nil {
		errorResponse(c, http.StatusNotFound, "unknown run id: "+runID)
		return
	}

	successResponse(c, http.StatusOK, sup.Snapshot())
}

// handleListSupervisors returns snapshots of every supervision run since
// startup, terminal ones included.
func (s *Server) handleListSupervisors(c *gin.Context) {
	successResponse(c, http.StatusOK, s.orchestrator.Supervisors())
}
