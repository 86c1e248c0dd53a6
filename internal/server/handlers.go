package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/umbralrisk/umbral/internal/engine"
	"github.com/umbralrisk/umbral/pkg/errors"
)

// OperationRow is one parsed upload row. Format validation (dates, numbers,
// identifier shapes) happens in the upstream ingestion collaborator; the
// binding tags here only enforce structural presence.
type OperationRow struct {
	ID               string  `json:"id"`
	ClientTaxID      string  `json:"client_tax_id" binding:"required"`
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	SecondLastName   string  `json:"second_last_name"`
	NationalID       string  `json:"national_id"`
	PersonType       string  `json:"person_type" binding:"required,oneof=INDIVIDUAL CORPORATE"`
	Nationality      string  `json:"nationality"`
	DeclaredPEP      bool    `json:"declared_pep"`
	FirstOperation   bool    `json:"first_operation"`
	OwnerActsForSelf bool    `json:"owner_acts_for_self"`
	OwnerName        string  `json:"owner_name"`
	OwnerTaxID       string  `json:"owner_tax_id"`
	Activity         string  `json:"activity" binding:"required,activity"`
	Amount           string  `json:"amount" binding:"required"`
	PaymentMethod    string  `json:"payment_method" binding:"required,oneof=CASH TRANSFER CARD CHECK OTHER"`
	CashAmount       string  `json:"cash_amount"`
	State            string  `json:"state"`
	OperationDate    string  `json:"operation_date" binding:"required"`
	ContentHash      string  `json:"content_hash"`
	RiskCalculatedAt *string `json:"risk_calculated_at"`
}

// BatchRequest is the batch ingest payload.
type BatchRequest struct {
	Rows []OperationRow `json:"rows" binding:"required,min=1,dive"`
}

// RecalculateRequest carries the document-write trigger's previous and
// current states. previous is absent on creation; when current is omitted
// the stored state is used.
type RecalculateRequest struct {
	Previous *OperationRow `json:"previous"`
	Current  *OperationRow `json:"current"`
}

func (s *Server) handleBatch(c *gin.Context) {
	tenantID := c.Param("tenant")
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		problem(c, errors.NewValidation(err.Error()))
		return
	}

	rows := make([]*engine.Operation, 0, len(req.Rows))
	for i, raw := range req.Rows {
		op, err := raw.toOperation(tenantID)
		if err != nil {
			problem(c, errors.NewValidation("row "+strconv.Itoa(i+1)+": "+err.Error()))
			return
		}
		rows = append(rows, op)
	}

	result, err := s.orchestrator.Process(c.Request.Context(), tenantID, rows)
	if err != nil {
		problem(c, errors.NewValidation(err.Error()))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRecalculate(c *gin.Context) {
	tenantID := c.Param("tenant")
	operationID := c.Param("id")

	var req RecalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		problem(c, errors.NewValidation(err.Error()))
		return
	}

	var prev, curr *engine.Operation
	var err error
	if req.Previous != nil {
		if prev, err = req.Previous.toOperation(tenantID); err != nil {
			problem(c, errors.NewValidation("previous: "+err.Error()))
			return
		}
	}
	if req.Current != nil {
		if curr, err = req.Current.toOperation(tenantID); err != nil {
			problem(c, errors.NewValidation("current: "+err.Error()))
			return
		}
		curr.ID = operationID
	} else {
		curr, err = s.operations.GetOperation(c.Request.Context(), tenantID, operationID)
		if err != nil {
			s.logger.Sugar().Errorw("load operation failed", "operation_id", operationID, "error", err)
			problem(c, errors.NewInternal())
			return
		}
		if curr == nil {
			problem(c, errors.NewNotFound("operation "+operationID+" not found"))
			return
		}
	}

	assessment, err := s.recalc.HandleWrite(c.Request.Context(), prev, curr)
	if err != nil {
		s.logger.Sugar().Errorw("recalculation failed", "operation_id", operationID, "error", err)
		problem(c, errors.NewInternal())
		return
	}
	if assessment == nil {
		c.JSON(http.StatusOK, gin.H{"recalculated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recalculated": true, "assessment": assessment})
}

func (s *Server) handleListAlerts(c *gin.Context) {
	tenantID := c.Param("tenant")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	alerts, err := s.alerts.ListAlerts(c.Request.Context(), tenantID, limit)
	if err != nil {
		s.logger.Sugar().Errorw("list alerts failed", "tenant_id", tenantID, "error", err)
		problem(c, errors.NewInternal())
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) handleAcknowledgeAlert(c *gin.Context) {
	tenantID := c.Param("tenant")
	alertID := c.Param("id")
	if err := s.alerts.AcknowledgeAlert(c.Request.Context(), tenantID, alertID); err != nil {
		problem(c, errors.NewNotFound(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func problem(c *gin.Context, p *errors.Problem) {
	p.Instance = c.Request.URL.Path
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(p.Status, p)
}

// toOperation converts a parsed row into the engine model.
func (r *OperationRow) toOperation(tenantID string) (*engine.Operation, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, errors.NewValidation("amount " + strconv.Quote(r.Amount) + " is not a number")
	}
	cash := decimal.Zero
	if r.CashAmount != "" {
		if cash, err = decimal.NewFromString(r.CashAmount); err != nil {
			return nil, errors.NewValidation("cash_amount " + strconv.Quote(r.CashAmount) + " is not a number")
		}
	}
	opDate, err := time.Parse("2006-01-02", r.OperationDate)
	if err != nil {
		if opDate, err = time.Parse(time.RFC3339, r.OperationDate); err != nil {
			return nil, errors.NewValidation("operation_date " + strconv.Quote(r.OperationDate) + " is not a date")
		}
	}

	op := &engine.Operation{
		ID:               r.ID,
		TenantID:         tenantID,
		ClientTaxID:      r.ClientTaxID,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		SecondLastName:   r.SecondLastName,
		NationalID:       r.NationalID,
		PersonType:       engine.PersonType(r.PersonType),
		Nationality:      r.Nationality,
		DeclaredPEP:      r.DeclaredPEP,
		FirstOperation:   r.FirstOperation,
		OwnerActsForSelf: r.OwnerActsForSelf,
		OwnerName:        r.OwnerName,
		OwnerTaxID:       r.OwnerTaxID,
		Activity:         engine.ActivityType(r.Activity),
		Amount:           amount,
		PaymentMethod:    engine.PaymentMethod(r.PaymentMethod),
		CashAmount:       cash,
		State:            r.State,
		OperationDate:    opDate,
		ContentHash:      r.ContentHash,
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if r.RiskCalculatedAt != nil {
		if ts, err := time.Parse(time.RFC3339, *r.RiskCalculatedAt); err == nil {
			op.RiskCalculatedAt = ts
		}
	}
	return op, nil
}
