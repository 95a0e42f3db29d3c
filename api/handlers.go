package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"bq-tools/secrets"
	"bq-tools/service"

	"cloud.google.com/go/bigquery"
	"github.com/gin-gonic/gin"
)

// Warehouse is the part of service.BigQueryService the handlers call.
type Warehouse interface {
	Query(ctx context.Context, sqlQuery string) (*service.Table, error)
	Upload(ctx context.Context, data *service.Table, dataset, tableName string, policy service.IfExists) error
	StartTransfer(ctx context.Context, req service.TransferRequest) (string, error)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingTransferArgs), errors.Is(err, service.ErrInvalidPolicy):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrProjectNotFound), errors.Is(err, service.ErrTransferNotFound),
		errors.Is(err, secrets.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrTableExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrClientNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), msg, "error", err)
	} else {
		slog.WarnContext(c.Request.Context(), msg, "error", err)
	}
	c.JSON(status, gin.H{"error": msg + ": " + err.Error()})
}

type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

type QueryResponse struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

func QueryHandler(wh Warehouse) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		table, err := wh.Query(c.Request.Context(), req.Query)
		if err != nil {
			abortWithError(c, "Query failed", err)
			return
		}

		c.JSON(http.StatusOK, QueryResponse{Columns: table.Columns(), Rows: table.JSONRows(), RowCount: table.Len()})
	}
}

type UploadRequest struct {
	Dataset  string   `json:"dataset" binding:"required"`
	Table    string   `json:"table" binding:"required"`
	IfExists string   `json:"if_exists"`
	Columns  []string `json:"columns" binding:"required,min=1"`
	// Types optionally gives a BigQuery type per column, e.g. "STRING".
	Types []string `json:"types"`
	// Numbers in Rows decode as json.Number so INT64 values keep every digit.
	Rows [][]any `json:"rows"`
}

func (r UploadRequest) table() (*service.Table, error) {
	t, err := service.NewTable(r.Columns, r.Rows)
	if err != nil {
		return nil, err
	}
	if len(r.Types) == 0 {
		return t, nil
	}
	if len(r.Types) != len(r.Columns) {
		return nil, errors.New("types must line up with columns")
	}
	for i, typ := range r.Types {
		t.Schema[i].Type = bigquery.FieldType(strings.ToUpper(typ))
	}
	return t, nil
}

func UploadHandler(wh Warehouse) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		table, err := req.table()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		policy, err := service.ParseIfExists(req.IfExists)
		if err != nil {
			abortWithError(c, "Invalid if_exists", err)
			return
		}

		slog.InfoContext(c.Request.Context(), "Received upload request",
			"dataset", req.Dataset,
			"table", req.Table,
			"if_exists", string(policy),
			"rows", table.Len(),
		)
		if err := wh.Upload(c.Request.Context(), table, req.Dataset, req.Table, policy); err != nil {
			abortWithError(c, "Upload failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "OK", "rows": table.Len()})
	}
}

type TransferRequest struct {
	ProjectPath  string `json:"project_path"`
	ProjectName  string `json:"project_name"`
	TransferName string `json:"transfer_name"`
}

func TransferHandler(wh Warehouse) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		state, err := wh.StartTransfer(c.Request.Context(), service.TransferRequest{
			ProjectPath:  req.ProjectPath,
			ProjectName:  req.ProjectName,
			TransferName: req.TransferName,
		})
		if err != nil {
			abortWithError(c, "Failed to start transfer", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": state})
	}
}
