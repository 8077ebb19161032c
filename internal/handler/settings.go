package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/views"
	"go.uber.org/zap"
)

// SettingsServicer is satisfied by *service.SettingsService.
type SettingsServicer interface {
	Load(ctx context.Context) (database.Setting, error)
	Save(ctx context.Context, arg database.UpdateSettingsParams) (database.Setting, error)
}

// BellServicer is satisfied by *service.BellService.
type BellServicer interface {
	Ring(ctx context.Context, tableID int32, message string) (database.BellNotification, error)
	Unread(ctx context.Context, tableID int32) ([]database.BellNotification, error)
	MarkRead(ctx context.Context, tableID int32, id uuid.UUID) (database.BellNotification, error)
}

// MenuStore is satisfied by *database.Queries.
type MenuStore interface {
	ListAvailableMenuItems(ctx context.Context) ([]database.MenuItem, error)
}

// FloorHandler serves the settings toggles, the table bell and the menu.
type FloorHandler struct {
	settings SettingsServicer
	bells    BellServicer
	menu     MenuStore
	logger   *zap.Logger
}

func NewFloorHandler(settings SettingsServicer, bells BellServicer, menu MenuStore, logger *zap.Logger) *FloorHandler {
	return &FloorHandler{settings: settings, bells: bells, menu: menu, logger: logger.Named("floor")}
}

// RegisterPublicRoutes registers the menu and the customer side of the bell.
func (h *FloorHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/menu", h.Menu)
	r.Get("/tables/{table}/bell", h.UnreadBells)
	r.Post("/tables/{table}/bell/{id}/read", h.MarkBellRead)
}

// RegisterStaffRoutes registers settings and bell endpoints inside /staff.
func (h *FloorHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	r.Post("/bell", h.Ring)
}

// --- Request / Response types ---

type settingsRequest struct {
	OrdersEnabled *bool `json:"orders_enabled"`
	CardEnabled   *bool `json:"card_enabled"`
	CashEnabled   *bool `json:"cash_enabled"`
}

type ringRequest struct {
	TableID int32  `json:"table_id"`
	Message string `json:"message"`
}

type menuItemResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Category    string    `json:"category"`
}

// --- Handlers ---

// GetSettings handles GET /staff/settings.
func (h *FloorHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.settings.Load(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// UpdateSettings handles PUT /staff/settings. Omitted toggles keep their
// current value.
func (h *FloorHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	current, err := h.settings.Load(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "load settings", err)
		return
	}
	arg := database.UpdateSettingsParams{
		OrdersEnabled: current.OrdersEnabled,
		CardEnabled:   current.CardEnabled,
		CashEnabled:   current.CashEnabled,
	}
	if req.OrdersEnabled != nil {
		arg.OrdersEnabled = *req.OrdersEnabled
	}
	if req.CardEnabled != nil {
		arg.CardEnabled = *req.CardEnabled
	}
	if req.CashEnabled != nil {
		arg.CashEnabled = *req.CashEnabled
	}

	st, err := h.settings.Save(r.Context(), arg)
	if err != nil {
		writeServiceError(w, h.logger, "save settings", err)
		return
	}
	h.logger.Info("settings updated",
		zap.Bool("orders_enabled", st.OrdersEnabled),
		zap.Bool("card_enabled", st.CardEnabled),
		zap.Bool("cash_enabled", st.CashEnabled))
	writeJSON(w, http.StatusOK, st)
}

// Ring handles POST /staff/bell.
func (h *FloorHandler) Ring(w http.ResponseWriter, r *http.Request) {
	var req ringRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	b, err := h.bells.Ring(r.Context(), req.TableID, req.Message)
	if err != nil {
		writeServiceError(w, h.logger, "ring bell", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// UnreadBells handles GET /tables/{table}/bell.
func (h *FloorHandler) UnreadBells(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table"})
		return
	}
	items, err := h.bells.Unread(r.Context(), table)
	if err != nil {
		writeServiceError(w, h.logger, "list bells", err)
		return
	}
	if items == nil {
		items = []database.BellNotification{}
	}
	writeJSON(w, http.StatusOK, items)
}

// MarkBellRead handles POST /tables/{table}/bell/{id}/read.
func (h *FloorHandler) MarkBellRead(w http.ResponseWriter, r *http.Request) {
	table, ok := tableParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid bell ID"})
		return
	}
	b, err := h.bells.MarkRead(r.Context(), table, id)
	if err != nil {
		writeServiceError(w, h.logger, "mark bell read", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Menu handles GET /menu.
func (h *FloorHandler) Menu(w http.ResponseWriter, r *http.Request) {
	items, err := h.menu.ListAvailableMenuItems(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list menu", err)
		return
	}
	resp := make([]menuItemResponse, len(items))
	for i, it := range items {
		resp[i] = menuItemResponse{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			Price:       views.FormatAmount(it.Price),
			Category:    it.Category,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
