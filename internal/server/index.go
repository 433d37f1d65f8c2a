package server

import "net/http"

// indexPage is a minimal built-in preview player: it plays the fMP4
// stream through MSE and drives zoom and cursor over the WebSocket.
const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>reelcap</title>
<style>
body { background: #111; color: #ddd; font-family: sans-serif; margin: 2em; }
video { width: 80%; background: #000; }
button { margin-right: 0.5em; }
</style>
</head>
<body>
<h2>reelcap live preview</h2>
<video id="v" autoplay muted></video>
<div>
<button onclick="send({type:'start'})">Start</button>
<button onclick="send({type:'stop'})">Stop</button>
<input id="zoom" type="range" min="1" max="4" step="0.1" value="1"
  oninput="send({type:'zoom', level: parseFloat(this.value)})">
<span id="status">idle</span>
</div>
<script>
const ws = new WebSocket('ws://' + location.host + '/api/ws');
function send(msg) { if (ws.readyState === 1) ws.send(JSON.stringify(msg)); }
ws.onmessage = (e) => {
  const ev = JSON.parse(e.data);
  if (ev.type === 'status') {
    document.getElementById('status').textContent =
      ev.state + ' ' + (ev.elapsed_seconds || 0).toFixed(0) + 's';
  } else if (ev.type === 'completed') {
    document.getElementById('status').textContent = 'completed: ' + ev.path;
  } else if (ev.type === 'failed') {
    document.getElementById('status').textContent = 'failed: ' + ev.reason;
  }
};
document.getElementById('v').addEventListener('mousemove', (e) => {
  const r = e.target.getBoundingClientRect();
  send({type: 'cursor', x: (e.clientX - r.left) / r.width, y: (e.clientY - r.top) / r.height});
});
const video = document.getElementById('v');
const ms = new MediaSource();
video.src = URL.createObjectURL(ms);
ms.addEventListener('sourceopen', async () => {
  const sb = ms.addSourceBuffer('video/mp4; codecs="avc1.640028, mp4a.40.2"');
  const resp = await fetch('/api/stream');
  const reader = resp.body.getReader();
  const pump = async () => {
    const {done, value} = await reader.read();
    if (done) return;
    await new Promise((res) => {
      sb.addEventListener('updateend', res, {once: true});
      sb.appendBuffer(value);
    });
    pump();
  };
  pump();
});
</script>
</body>
</html>
`

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}
