// Command test-server serves a small instrumented demo page for manual
// perfgate runs:
//
//	go run ./scripts/test-server &
//	perfgate run --config examples/demo.yaml --control-url ws://127.0.0.1:9222
//
// The page mounts the instrumentation store and performs a few artificial
// renders so every probe has something to measure.
package main

import (
	"fmt"
	"log"
	"net/http"
	"time"
)

const demoPage = `<!DOCTYPE html>
<html>
<head><title>perfgate demo</title></head>
<body>
<h1>perfgate demo page</h1>
<div id="list"></div>
<script>
window.__perfgateStore = {
  sampleCount: 0,
  totalDuration: 0,
  perSubjectBreakdown: {},
};
function record(subject, duration) {
  var s = window.__perfgateStore;
  s.sampleCount++;
  s.totalDuration += duration;
  var b = s.perSubjectBreakdown[subject] || { duration: 0, renders: 0 };
  b.duration += duration;
  b.renders++;
  s.perSubjectBreakdown[subject] = b;
}
function render(i) {
  var start = performance.now();
  var el = document.createElement("div");
  el.textContent = "row " + i;
  document.getElementById("list").appendChild(el);
  record("list", performance.now() - start);
}
var i = 0;
var timer = setInterval(function () {
  render(i++);
  if (i >= 20) clearInterval(timer);
}, 25);
</script>
</body>
</html>`

func main() {
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, demoPage)
	})
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "healthy")
	})

	server := &http.Server{
		Addr:              ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	log.Printf("Serving instrumented demo page on :8080")
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
