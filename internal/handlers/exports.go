package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"example.com/kapitallo/backend/internal/auth"
	"example.com/kapitallo/backend/internal/models"
	"example.com/kapitallo/backend/internal/repository"
)

const (
	exportFormatCSV  = "csv"
	exportFormatJSON = "json"

	exportPageSize = 500
	maxExportRows  = 50000
)

// TransactionLister отдает операции постранично.
type TransactionLister interface {
	List(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter, limit, offset int) ([]models.Transaction, error)
}

type ExportHandler struct {
	Transactions TransactionLister
	Categories   CategoryLister
}

// NewExportHandler создает обработчик выгрузки операций.
func NewExportHandler(transactions TransactionLister, categories CategoryLister) *ExportHandler {
	return &ExportHandler{Transactions: transactions, Categories: categories}
}

type ExportRow struct {
	models.Transaction
	CategoryName string `json:"category_name,omitempty"`
}

// Transactions выгружает операции с теми же фильтрами, что и список, в CSV (по умолчанию) или JSON.
func (h *ExportHandler) Transactions(c echo.Context) error {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	format := strings.ToLower(strings.TrimSpace(c.QueryParam("format")))
	if format == "" {
		format = exportFormatCSV
	}
	if format != exportFormatCSV && format != exportFormatJSON {
		return badRequest(c, "invalid export format")
	}

	filter, err := parseTransactionFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Request().Context()
	rows, err := h.collect(ctx, userID, filter)
	if err != nil {
		return serverError(c)
	}

	categories, err := h.Categories.List(ctx, userID)
	if err != nil {
		return serverError(c)
	}
	names := make(map[uuid.UUID]string, len(categories))
	for _, category := range categories {
		names[category.ID] = category.Name
	}

	export := make([]ExportRow, 0, len(rows))
	for _, row := range rows {
		item := ExportRow{Transaction: row}
		if row.CategoryID != nil {
			item.CategoryName = names[*row.CategoryID]
		}
		export = append(export, item)
	}

	filename := "transactions." + format
	c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=\""+filename+"\"")

	if format == exportFormatJSON {
		return c.JSON(http.StatusOK, map[string]interface{}{"transactions": export})
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writeTransactionsCSV(writer, export); err != nil {
		return serverError(c)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return serverError(c)
	}

	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *ExportHandler) collect(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter) ([]models.Transaction, error) {
	var rows []models.Transaction
	for offset := 0; offset < maxExportRows; offset += exportPageSize {
		page, err := h.Transactions.List(ctx, userID, filter, exportPageSize, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if len(page) < exportPageSize {
			break
		}
	}
	return rows, nil
}

func writeTransactionsCSV(writer *csv.Writer, rows []ExportRow) error {
	header := []string{
		"id",
		"date",
		"type",
		"amount",
		"currency",
		"category_id",
		"category_name",
		"description",
		"created_at",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		categoryID := ""
		if row.CategoryID != nil {
			categoryID = row.CategoryID.String()
		}
		description := ""
		if row.Description != nil {
			description = *row.Description
		}

		record := []string{
			row.ID.String(),
			row.Date.Format(dateLayout),
			string(row.Type),
			row.Amount.StringFixed(2),
			row.Currency,
			categoryID,
			row.CategoryName,
			description,
			row.CreatedAt.Format(timeLayout),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}
