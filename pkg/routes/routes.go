package routes

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/kabili207/mesh-map-server/internal/web"
	"github.com/kabili207/mesh-map-server/pkg/models"
	"github.com/kabili207/mesh-map-server/pkg/store"
)

// WebRouter serves the map page and the read-only topology API.
type WebRouter struct {
	storage *store.Stores
}

func NewWebRouter(storage *store.Stores) *WebRouter {
	return &WebRouter{storage: storage}
}

type PageVariables struct {
	PageTitle string
}

type nodeJSON struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	WlanIP          string    `json:"wlan_ip"`
	Description     string    `json:"description"`
	Model           string    `json:"model"`
	BoardID         string    `json:"board_id"`
	FirmwareVersion string    `json:"firmware_version"`
	FirmwareMfg     string    `json:"firmware_mfg"`
	APIVersion      string    `json:"api_version"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	GridSquare      string    `json:"grid_square"`
	SSID            string    `json:"ssid"`
	Channel         string    `json:"channel"`
	ChannelBW       string    `json:"channel_bandwidth"`
	UpTime          string    `json:"up_time"`
	LoadAverages    []float64 `json:"load_averages"`
	LinkCount       int       `json:"link_count"`
	Status          string    `json:"status"`
	LastSeen        time.Time `json:"last_seen"`
}

type linkJSON struct {
	ID              int64     `json:"id"`
	SourceName      string    `json:"source_name"`
	DestinationName string    `json:"destination_name"`
	OlsrCost        *float64  `json:"olsr_cost"`
	Distance        *float64  `json:"distance"`
	Bearing         *float64  `json:"bearing"`
	Status          string    `json:"status"`
	LastSeen        time.Time `json:"last_seen"`
}

type runJSON struct {
	ID           int64           `json:"id"`
	StartedAt    time.Time       `json:"started_at"`
	NodeCount    int             `json:"node_count"`
	LinkCount    int             `json:"link_count"`
	ErrorCount   int             `json:"error_count"`
	PollSeconds  float64         `json:"poll_seconds"`
	TotalSeconds float64         `json:"total_seconds"`
	Counters     json.RawMessage `json:"counters"`
}

type nodeDetailJSON struct {
	nodeJSON
	Links []linkJSON `json:"links"`
}

func toNodeJSON(n *models.Node) nodeJSON {
	return nodeJSON{
		ID:              n.ID,
		Name:            n.Name,
		WlanIP:          n.WlanIP,
		Description:     n.Description,
		Model:           n.Model,
		BoardID:         n.BoardID,
		FirmwareVersion: n.FirmwareVersion,
		FirmwareMfg:     n.FirmwareMfg,
		APIVersion:      n.APIVersion,
		Latitude:        n.Latitude,
		Longitude:       n.Longitude,
		GridSquare:      n.GridSquare,
		SSID:            n.SSID,
		Channel:         n.Channel,
		ChannelBW:       n.ChannelBW,
		UpTime:          n.UpTime,
		LoadAverages:    []float64(n.LoadAverages),
		LinkCount:       n.LinkCount,
		Status:          string(n.Status),
		LastSeen:        n.LastSeen,
	}
}

func toLinkJSON(v *models.LinkView) linkJSON {
	return linkJSON{
		ID:              v.ID,
		SourceName:      v.SourceName,
		DestinationName: v.DestinationName,
		OlsrCost:        v.OlsrCost,
		Distance:        v.Distance,
		Bearing:         v.Bearing,
		Status:          string(v.Status),
		LastSeen:        v.LastSeen,
	}
}

// Handler builds the router with its middleware stack.
func (wr *WebRouter) Handler() http.Handler {
	myRouter := mux.NewRouter().StrictSlash(true)

	myRouter.HandleFunc("/", wr.mapPage)
	myRouter.HandleFunc("/api/nodes", wr.getNodes).Methods("GET")
	myRouter.HandleFunc("/api/nodes/{id}", wr.getNode).Methods("GET")
	myRouter.HandleFunc("/api/links", wr.getLinks).Methods("GET")
	myRouter.HandleFunc("/api/runs", wr.getRuns).Methods("GET")

	myRouter.Use(handlers.ProxyHeaders)
	myRouter.Use(RequestLogger)
	h := handlers.RecoveryHandler()

	return h(handlers.CompressHandler(myRouter))
}

// Initialize serves the router on listenAddr, blocking until the listener
// fails.
func (wr *WebRouter) Initialize(listenAddr string) error {
	return http.ListenAndServe(listenAddr, wr.Handler())
}

func RequestLogger(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		slog.Info("endpoint hit", "method", r.Method, "path", r.URL.Path, "remote_host", r.RemoteAddr, "user_agent", r.UserAgent())
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}

func (wr *WebRouter) mapPage(w http.ResponseWriter, r *http.Request) {
	tmpl, err := web.GetHTMLTemplate("map")
	if err != nil {
		slog.Error("error loading map template", "error", err)
		http.Error(w, "Error rendering page", 500)
		return
	}
	if err := tmpl.Execute(w, PageVariables{PageTitle: "Mesh Map"}); err != nil {
		slog.Error("error rendering map page", "error", err)
	}
}

func (wr *WebRouter) getNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := wr.storage.Nodes.GetAllActive()
	if err != nil {
		slog.Error("error fetching nodes", "error", err)
		http.Error(w, "Error fetching nodes", 500)
		return
	}
	out := make([]nodeJSON, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toNodeJSON(n))
	}
	writeJSON(w, out)
}

func (wr *WebRouter) getNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid node id", http.StatusBadRequest)
		return
	}
	node, err := wr.storage.Nodes.GetByID(id)
	if err != nil {
		slog.Error("error fetching node", "id", id, "error", err)
		http.Error(w, "Error fetching node", 500)
		return
	}
	if node == nil {
		http.Error(w, "Node not found", http.StatusNotFound)
		return
	}
	views, err := wr.storage.Links.GetViewsBySource(id)
	if err != nil {
		slog.Error("error fetching node links", "id", id, "error", err)
		http.Error(w, "Error fetching node", 500)
		return
	}
	detail := nodeDetailJSON{nodeJSON: toNodeJSON(node), Links: make([]linkJSON, 0, len(views))}
	for _, v := range views {
		detail.Links = append(detail.Links, toLinkJSON(v))
	}
	writeJSON(w, detail)
}

func (wr *WebRouter) getLinks(w http.ResponseWriter, r *http.Request) {
	views, err := wr.storage.Links.GetViews()
	if err != nil {
		slog.Error("error fetching links", "error", err)
		http.Error(w, "Error fetching links", 500)
		return
	}
	out := make([]linkJSON, 0, len(views))
	for _, v := range views {
		out = append(out, toLinkJSON(v))
	}
	writeJSON(w, out)
}

func (wr *WebRouter) getRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := wr.storage.Runs.GetRecent(50)
	if err != nil {
		slog.Error("error fetching runs", "error", err)
		http.Error(w, "Error fetching runs", 500)
		return
	}
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, runJSON{
			ID:           run.ID,
			StartedAt:    run.StartedAt,
			NodeCount:    run.NodeCount,
			LinkCount:    run.LinkCount,
			ErrorCount:   run.ErrorCount,
			PollSeconds:  run.PollSeconds,
			TotalSeconds: run.TotalSeconds,
			Counters:     json.RawMessage(run.Counters),
		})
	}
	writeJSON(w, out)
}
