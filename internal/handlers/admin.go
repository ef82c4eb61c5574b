package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/devoll/rhga-schedule-bot/internal/config"
	"github.com/devoll/rhga-schedule-bot/internal/sheets"
	"github.com/devoll/rhga-schedule-bot/internal/syncer"

	"github.com/gin-gonic/gin"
)

// SheetSyncer is the part of syncer.Service the admin routes use.
type SheetSyncer interface {
	SyncSheet(ctx context.Context, sheetName string) (syncer.Report, error)
	SpreadsheetID() string
	DefaultSheet() string
}

// AdminHandler expone la sincronización manual y la lectura directa de la hoja.
type AdminHandler struct {
	Sync    SheetSyncer
	Fetcher sheets.Fetcher
}

func NewAdminHandler(sync SheetSyncer, fetcher sheets.Fetcher) *AdminHandler {
	return &AdminHandler{Sync: sync, Fetcher: fetcher}
}

// SyncSheetToDB handles POST /sync/sheet-to-db?sheetName=
func (h *AdminHandler) SyncSheetToDB(c *gin.Context) {
	sheetName := strings.TrimSpace(c.Query("sheetName"))

	rep, err := h.Sync.SyncSheet(c.Request.Context(), sheetName)
	if err != nil {
		if sheetName == "" {
			sheetName = h.Sync.DefaultSheet()
		}
		log.Printf("❌ Error during sync for sheet '%s': %v", sheetName, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to sync sheet '%s': %v", sheetName, err),
			"class": syncer.Classify(err),
		})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// GetSheet handles GET /google-sheets/sheet?sheetName=
func (h *AdminHandler) GetSheet(c *gin.Context) {
	id := h.Sync.SpreadsheetID()
	if id == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": config.ErrNoSpreadsheet.Error()})
		return
	}
	sheetName := strings.TrimSpace(c.Query("sheetName"))
	if sheetName == "" {
		sheetName = h.Sync.DefaultSheet()
	}

	res, err := sheets.GetSheetData(c.Request.Context(), h.Fetcher, id, sheetName)
	if err != nil {
		c.JSON(sheetErrorStatus(err), gin.H{"error": err.Error(), "class": syncer.Classify(err)})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetAllSheets handles GET /google-sheets/all-sheets?sheetNames=a,b
func (h *AdminHandler) GetAllSheets(c *gin.Context) {
	id := h.Sync.SpreadsheetID()
	if id == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": config.ErrNoSpreadsheet.Error()})
		return
	}
	names := config.SplitList(c.Query("sheetNames"))
	if len(names) == 0 {
		names = []string{h.Sync.DefaultSheet()}
	}
	c.JSON(http.StatusOK, sheets.GetAllSheetsData(c.Request.Context(), h.Fetcher, id, names))
}

func sheetErrorStatus(err error) int {
	var te *sheets.TransportError
	if errors.As(err, &te) && te.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
