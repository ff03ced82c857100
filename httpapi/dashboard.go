package httpapi

import "net/http"

// defaultDashboardHTML is served when Config.DashboardHTML is empty — a
// static placeholder page with no dynamic rendering.
const defaultDashboardHTML = `<!DOCTYPE html>
<html>
<head><title>talvault</title></head>
<body>
<h1>talvault</h1>
<p>See <a href="/metrics">/metrics</a> for Prometheus metrics and
<a href="/logs">/logs</a> for structured logs.</p>
</body>
</html>
`

func (h *handlers) dashboard(w http.ResponseWriter, r *http.Request) {
	page := h.cfg.DashboardHTML
	if page == "" {
		page = defaultDashboardHTML
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}
