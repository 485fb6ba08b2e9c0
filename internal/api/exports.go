package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/awqp/ubidots-export/internal/directory"
	"github.com/awqp/ubidots-export/internal/export"
	"github.com/awqp/ubidots-export/internal/history"
	"github.com/awqp/ubidots-export/internal/pipeline"
	"github.com/awqp/ubidots-export/internal/reshape"
	"github.com/awqp/ubidots-export/internal/ubidots"
)

// EventExportCompleted is broadcast after every CSV download.
const EventExportCompleted = "export.completed"

// deviceView is the JSON shape of one device.
type deviceView struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Label string   `json:"label,omitempty"`
	Type  string   `json:"type"`
	Lat   *float64 `json:"lat,omitempty"`
	Lng   *float64 `json:"lng,omitempty"`
}

// devicesResponse is the body of GET /devices.
type devicesResponse struct {
	DeviceType string             `json:"device_type"`
	Devices    []deviceView       `json:"devices"`
	Dropped    []deviceView       `json:"dropped"`
	Table      *reshape.WideTable `json:"table"`
}

// exportEvent is the payload of EventExportCompleted.
type exportEvent struct {
	RunID      string `json:"run_id,omitempty"`
	DeviceType string `json:"device_type"`
	FileName   string `json:"file_name"`
	Rows       int    `json:"rows"`
	Source     string `json:"source"`
}

func toDeviceViews(rows []directory.DeviceRow) []deviceView {
	views := make([]deviceView, 0, len(rows))
	for _, d := range rows {
		v := deviceView{ID: d.ID, Name: d.Name, Label: d.Label, Type: d.Type}
		if d.Location != nil {
			lat, lng := d.Location.Lat, d.Location.Lng
			v.Lat, v.Lng = &lat, &lng
		}
		views = append(views, v)
	}
	return views
}

// requestToken returns the caller's Ubidots token, falling back to the
// server's own.
func (s *Server) requestToken(r *http.Request) string {
	if tok := r.Header.Get(ubidots.AuthHeader); tok != "" {
		return tok
	}
	return s.token
}

// requestDeviceType returns the type query parameter or the default type.
func (s *Server) requestDeviceType(r *http.Request) string {
	if t := r.URL.Query().Get("type"); t != "" {
		return t
	}
	return s.deviceType
}

// result runs or recalls the pipeline for the request. refresh=true drops
// any cached result first.
func (s *Server) result(r *http.Request) (*pipeline.Result, error) {
	deviceType := s.requestDeviceType(r)
	token := s.requestToken(r)
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh { //nolint:errcheck // malformed means false
		s.cache.Invalidate(deviceType, token)
	}
	return s.cache.Get(r.Context(), deviceType, token)
}

// handleListDevices returns the devices of a type and their export table.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	res, err := s.result(r)
	if err != nil {
		s.logger.Warn("device listing failed", "error", err)
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, devicesResponse{
		DeviceType: res.DeviceType,
		Devices:    toDeviceViews(res.Devices),
		Dropped:    toDeviceViews(res.Dropped),
		Table:      res.Export,
	})
}

// handleExportCSV streams the export table as a CSV attachment. Repeated
// name parameters restrict the rows to those devices.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	res, err := s.result(r)
	if err != nil {
		s.logger.Warn("export failed", "error", err)
		writePipelineError(w, err)
		return
	}

	table := res.Export.Select(r.URL.Query()["name"])
	fileName := export.FileName(s.exportPrefix, s.now())

	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		s.logger.Error("rendering export failed", "error", err)
		writeInternalError(w, "rendering export failed")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(buf.Bytes())

	// Recorded even if the client has already gone.
	ctx := context.WithoutCancel(r.Context())
	s.completeExport(ctx, res, fileName, table)
}

// completeExport records the run when history is configured and announces it.
func (s *Server) completeExport(ctx context.Context, res *pipeline.Result, fileName string, table *reshape.WideTable) {
	event := exportEvent{
		DeviceType: res.DeviceType,
		FileName:   fileName,
		Rows:       table.Len(),
		Source:     history.SourceAPI,
	}

	if s.history != nil {
		run := history.NewRun(res.DeviceType, history.SourceAPI, fileName, table.Columns, table.Rows)
		for _, d := range res.Dropped {
			run.Dropped = append(run.Dropped, d.Name)
		}
		if err := s.history.Create(ctx, run); err != nil {
			s.logger.Warn("recording export failed", "file", fileName, "error", err)
		} else {
			event.RunID = run.ID
		}
	}

	s.hub.Broadcast(EventExportCompleted, event)
}
