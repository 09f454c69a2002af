package controller

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"climate-server/internal/modules/climate/service"
	"climate-server/internal/modules/climate/views"
	"climate-server/internal/utils"
)

func (c *climateControllerImpl) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := views.RenderIndex(&buf, &views.IndexData{Routes: views.Routes}); err != nil {
		slog.Error("index template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *climateControllerImpl) handlePrecipitation(w http.ResponseWriter, r *http.Request) {
	rows, err := c.service.Precipitation(r.Context())
	if err != nil {
		writeServiceError(w, r, "precipitation", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, rows)
}

func (c *climateControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	rows, err := c.service.Stations(r.Context())
	if err != nil {
		writeServiceError(w, r, "stations", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, rows)
}

func (c *climateControllerImpl) handleTemperatureObservations(w http.ResponseWriter, r *http.Request) {
	rows, err := c.service.TemperatureObservations(r.Context())
	if err != nil {
		writeServiceError(w, r, "tobs", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, rows)
}

// handleTemperatureSummary serves both /{start} and /{start}/{end}; end is
// empty for the single-segment route.
func (c *climateControllerImpl) handleTemperatureSummary(w http.ResponseWriter, r *http.Request) {
	start := r.PathValue("start")
	end := r.PathValue("end")

	summary, err := c.service.TemperatureSummary(r.Context(), start, end)
	if err != nil {
		writeServiceError(w, r, "temperature summary", err, "start", start, "end", end)
		return
	}
	utils.WriteJSON(w, http.StatusOK, summary)
}

// writeServiceError maps empty-dataset sentinels to 404. Anything else is
// logged and reported as 500 without leaking driver messages.
func writeServiceError(w http.ResponseWriter, r *http.Request, route string, err error, attrs ...any) {
	switch {
	case errors.Is(err, service.ErrNoMeasurements), errors.Is(err, service.ErrNoTemperatures):
		utils.WriteError(w, http.StatusNotFound, err.Error())
	default:
		args := append([]any{"route", route, "path", r.URL.Path, "error", err}, attrs...)
		slog.ErrorContext(r.Context(), "climate query failed", args...)
		utils.WriteError(w, http.StatusInternalServerError, "failed to query measurements")
	}
}
