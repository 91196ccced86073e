package handlers

import (
	"html/template"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/ordserve/internal/logfields"
	"git.home.luguber.info/inful/ordserve/internal/status"
)

// StatusPageHandlers renders the HTML dashboard at /status. It shows the same
// snapshot the JSON API serves, refreshed live over the WebSocket stream.
type StatusPageHandlers struct {
	Status *status.Provider
}

var statusPageTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>ordserve status</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a1a1a; }
h1 { font-size: 1.4rem; }
table { border-collapse: collapse; margin-top: 1rem; }
td, th { border: 1px solid #ccc; padding: .4rem .8rem; text-align: left; }
.phase-idle { color: #1a7f37; }
.phase-updating, .phase-warming { color: #9a6700; }
.phase-failed { color: #cf222e; }
code { background: #f6f8fa; padding: .1rem .3rem; }
</style>
</head>
<body>
<h1>ordserve &mdash; {{.Mode}} mode</h1>
<table>
<tr><th>Phase</th><td><span id="phase" class="phase-{{.State.Phase}}">{{.State.Phase}}</span></td></tr>
<tr><th>Current version</th><td><code id="version">{{if .State.CurrentVersion}}{{.State.CurrentVersion}}{{else}}&mdash;{{end}}</code></td></tr>
<tr><th>Last update</th><td id="lastUpdate">{{if .State.LastUpdateTime.IsZero}}&mdash;{{else}}{{.State.LastUpdateTime.Format "2006-01-02 15:04:05 MST"}}{{end}}</td></tr>
<tr><th>Failed updates</th><td id="failed">{{.State.FailedUpdates}}</td></tr>
{{if .State.LastError}}<tr><th>Last error</th><td><code>{{.State.LastError}}</code></td></tr>{{end}}
{{if .Content}}
<tr><th>Repository</th><td>{{.Content.Repository}} @ {{.Content.Branch}}</td></tr>
<tr><th>Files</th><td>{{.Content.TotalFiles}}</td></tr>
{{end}}
<tr><th>Cached documents</th><td id="cached">{{.Cache.Documents}}</td></tr>
<tr><th>Started</th><td>{{.StartedAt.Format "2006-01-02 15:04:05 MST"}}</td></tr>
</table>
<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/api/v1/ws");
  ws.onmessage = function (msg) {
    var snap = JSON.parse(msg.data);
    var phase = document.getElementById("phase");
    phase.textContent = snap.state.phase;
    phase.className = "phase-" + snap.state.phase;
    document.getElementById("version").textContent = snap.state.currentVersion || "—";
    document.getElementById("failed").textContent = snap.state.failedUpdates;
    document.getElementById("cached").textContent = snap.cache.documents;
  };
})();
</script>
</body>
</html>
`))

// HandleStatusPage serves GET /status.
func (h *StatusPageHandlers) HandleStatusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPageTemplate.Execute(w, h.Status.Snapshot()); err != nil {
		slog.Warn("Failed to render status page", logfields.Error(err))
	}
}
