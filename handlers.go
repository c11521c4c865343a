package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Sujan-Raj-1701/Gympro-sub001/settlement"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// historyReader serves closed days for the history endpoint.
type historyReader interface {
	History(ctx context.Context, scope settlement.Scope, r settlement.Range) ([]settlement.Closing, error)
}

type server struct {
	db      pinger
	sources settlement.SourceReader
	history historyReader
	loader  *settlement.Loader
	views   *settlement.Views
	closer  *settlement.Closer
	logger  logrus.FieldLogger
	today   func() time.Time
}

func (s *server) routes(r gin.IRouter) {
	r.GET("/health", s.healthCheck)
	r.GET("/api/payment-modes", s.getPaymentModes)
	r.GET("/api/settlements/summary", s.getSummary)
	r.GET("/api/settlements/history", s.getHistory)
	r.POST("/api/settlements/preview", s.previewClose)
	r.POST("/api/settlements/close", s.closeDay)
}

// healthCheck handles the health check endpoint
func (s *server) healthCheck(c *gin.Context) {
	if err := s.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "settlement-service",
	})
}

// getPaymentModes returns the payment-mode catalog of a scope
func (s *server) getPaymentModes(c *gin.Context) {
	var q scopeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	modes, err := s.sources.PaymentModes(c.Request.Context(), q.scope())
	if err != nil {
		logError(s.logger, "handlers", "getPaymentModes", "load payment modes", q.scope().String(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, modes)
}

// getSummary builds the daily settlement summaries of a range. Requests that
// carry a view key supersede earlier in-flight requests of the same view.
func (s *server) getSummary(c *gin.Context) {
	var q summaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := s.resolveRange(q.rangeQuery)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := settlement.Query{Scope: q.scope(), Range: r}
	if q.OpeningOverride != "" {
		override, err := decimal.NewFromString(q.OpeningOverride)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid opening_override"})
			return
		}
		query.Overrides = map[string]decimal.Decimal{r.From.Format(settlement.DateLayout): override}
	}

	var report *settlement.Report
	if q.View != "" {
		report, err = s.views.Refresh(c.Request.Context(), q.scope().String()+"|"+q.View, query)
	} else {
		report, err = s.loader.Load(c.Request.Context(), query)
	}
	if err != nil {
		s.settlementError(c, "getSummary", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// getHistory lists the closed days of a range
func (s *server) getHistory(c *gin.Context) {
	var q rangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r, err := s.resolveRange(q)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	closings, err := s.history.History(c.Request.Context(), q.scope(), r)
	if err != nil {
		s.settlementError(c, "getHistory", err)
		return
	}
	if closings == nil {
		closings = make([]settlement.Closing, 0)
	}
	c.JSON(http.StatusOK, historyResponse{
		Scope:    q.scope(),
		From:     r.From.Format(settlement.DateLayout),
		To:       r.To.Format(settlement.DateLayout),
		Closings: closings,
	})
}

// previewClose reconciles a day without closing it
func (s *server) previewClose(c *gin.Context) {
	req, ok := s.bindCloseRequest(c)
	if !ok {
		return
	}
	res, err := s.closer.Preview(c.Request.Context(), req)
	if err != nil {
		s.settlementError(c, "previewClose", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// closeDay closes a business day
func (s *server) closeDay(c *gin.Context) {
	req, ok := s.bindCloseRequest(c)
	if !ok {
		return
	}
	res, err := s.closer.Close(c.Request.Context(), req)
	if err != nil {
		s.settlementError(c, "closeDay", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *server) bindCloseRequest(c *gin.Context) (settlement.CloseRequest, bool) {
	var body closeDayRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return settlement.CloseRequest{}, false
	}
	req, err := body.toCloseRequest()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return settlement.CloseRequest{}, false
	}
	return req, true
}

func (s *server) resolveRange(q rangeQuery) (settlement.Range, error) {
	today := settlement.Day(s.today())
	from, to := today, today
	var err error
	if q.From != "" {
		if from, err = settlement.ParseDate(q.From); err != nil {
			return settlement.Range{}, err
		}
	}
	if q.To != "" {
		if to, err = settlement.ParseDate(q.To); err != nil {
			return settlement.Range{}, err
		}
	} else if q.From != "" && from.After(to) {
		to = from
	}
	return settlement.NewRange(from, to)
}

// settlementError maps settlement errors onto HTTP statuses.
func (s *server) settlementError(c *gin.Context, funcName string, err error) {
	switch {
	case errors.Is(err, settlement.ErrWithdrawalRequired),
		errors.Is(err, settlement.ErrWithdrawalInvalid),
		errors.Is(err, settlement.ErrVarianceExceeded),
		errors.Is(err, settlement.ErrClosedByRequired),
		errors.Is(err, settlement.ErrInvalidRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, settlement.ErrAlreadyClosed),
		errors.Is(err, settlement.ErrLockNotObtained),
		errors.Is(err, settlement.ErrStaleResult):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, settlement.ErrIncompleteData):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, settlement.ErrPersist):
		logError(s.logger, "handlers", funcName, "persist settlement", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": settlement.ErrPersist.Error()})
	default:
		logError(s.logger, "handlers", funcName, "unexpected error", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
