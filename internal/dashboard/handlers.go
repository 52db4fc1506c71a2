package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trader-insights/internal/ml"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const maxMessageSize = 4096

const rateLimitedMessage = "too many predictions, try again shortly"

// predictRequest is the JSON body of /api/predict and of each WebSocket
// message. Omitted fields take the form defaults.
type predictRequest struct {
	AvgTradeSize *float64      `json:"avg_trade_size"`
	Trades       *int          `json:"trades"`
	Sentiment    *ml.Sentiment `json:"sentiment"`
}

func (req predictRequest) features() ml.Features {
	f := ml.DefaultFeatures()
	if req.AvgTradeSize != nil {
		f.AvgTradeSize = *req.AvgTradeSize
	}
	if req.Trades != nil {
		f.TradeCount = *req.Trades
	}
	if req.Sentiment != nil {
		f.Sentiment = *req.Sentiment
	}
	return f
}

type predictResponse struct {
	ml.Prediction
	ConfidenceText string `json:"confidence_text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status      string         `json:"status"`
	Fingerprint string         `json:"fingerprint"`
	LoadedAt    string         `json:"loaded_at"`
	Backend     string         `json:"backend"`
	Rows        map[string]int `json:"rows"`
}

func (s *Server) handlePredictPage(w http.ResponseWriter, r *http.Request) {
	view := predictView{Form: ml.DefaultFeatures()}

	if r.Method == http.MethodPost {
		f, err := parsePredictForm(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		view.Form = f

		if !s.allowPrediction() {
			view.Error = rateLimitedMessage
			s.render(w, http.StatusTooManyRequests, predictPage, view)
			return
		}

		pred, err := s.predictor.Predict(r.Context(), f)
		if err != nil {
			view.Error = "Prediction failed: " + err.Error()
			s.render(w, http.StatusInternalServerError, predictPage, view)
			return
		}
		view.Result = &pred
	}

	s.render(w, http.StatusOK, predictPage, view)
}

func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summaries.Get(s.art)
	if err != nil {
		log.Error().Err(err).Msg("dashboard render failed")
		s.render(w, http.StatusInternalServerError, dashboardPage, dashboardView{Error: err.Error()})
		return
	}
	s.render(w, http.StatusOK, dashboardPage, newDashboardView(summary))
}

func (s *Server) handlePredictAPI(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	if !s.allowPrediction() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: rateLimitedMessage})
		return
	}

	pred, err := s.predictor.Predict(r.Context(), req.features())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{Prediction: pred, ConfidenceText: pred.ConfidenceText()})
}

func (s *Server) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summaries.Get(s.art)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Fingerprint: s.art.Fingerprint,
		LoadedAt:    s.art.LoadedAt.Format(time.RFC3339),
		Backend:     s.art.Backend,
		Rows: map[string]int{
			"trades":      len(s.art.Trades.Records),
			"predictions": len(s.art.Predictions.Records),
		},
	})
}

// handleWebSocket answers each JSON predict request message with a prediction
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.ErrorsTotal().Inc()
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	s.addClient(conn)
	defer s.removeClient(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("WebSocket client disconnected")
			}
			return
		}

		var reply interface{}
		var req predictRequest
		if err := json.Unmarshal(data, &req); err != nil {
			reply = errorResponse{Error: "invalid request: " + err.Error()}
		} else if !s.allowPrediction() {
			reply = errorResponse{Error: rateLimitedMessage}
		} else if pred, err := s.predictor.Predict(r.Context(), req.features()); err != nil {
			reply = errorResponse{Error: err.Error()}
		} else {
			reply = predictResponse{Prediction: pred, ConfidenceText: pred.ConfidenceText()}
		}

		if err := conn.WriteJSON(reply); err != nil {
			s.metrics.ErrorsTotal().Inc()
			log.Error().Err(err).Msg("Failed to send message to WebSocket client")
			return
		}
	}
}

// parsePredictForm reads the three form fields. An empty field takes its default.
func parsePredictForm(r *http.Request) (ml.Features, error) {
	f := ml.DefaultFeatures()
	if err := r.ParseForm(); err != nil {
		return f, fmt.Errorf("invalid form: %w", err)
	}

	if v := strings.TrimSpace(r.PostFormValue("avg_trade_size")); v != "" {
		size, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, fmt.Errorf("invalid average trade size %q", v)
		}
		f.AvgTradeSize = size
	}

	if v := strings.TrimSpace(r.PostFormValue("trades")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("invalid number of trades %q", v)
		}
		f.TradeCount = n
	}

	if v := r.PostFormValue("sentiment"); v != "" {
		sentiment, err := ml.ParseSentiment(v)
		if err != nil {
			return f, err
		}
		f.Sentiment = sentiment
	}

	return f, nil
}

// render executes page into a buffer first so a template error still yields a
// clean 500
func (s *Server) render(w http.ResponseWriter, status int, page *template.Template, data interface{}) {
	var buf bytes.Buffer
	if err := page.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Error().Err(err).Str("page", page.Name()).Msg("failed to render page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Debug().Err(err).Msg("client went away during render")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
