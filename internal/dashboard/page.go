package dashboard

import "net/http"

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Audit Log</title>
<style>
  :root {
    --bg: #0d1117;
    --surface: #161b22;
    --border: #30363d;
    --text: #e6edf3;
    --text-dim: #8b949e;
    --accent: #58a6ff;
    --green: #3fb950;
    --yellow: #d29922;
    --red: #f85149;
  }
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Helvetica, Arial, sans-serif;
    background: var(--bg);
    color: var(--text);
    font-size: 14px;
    line-height: 1.5;
    padding: 16px;
  }
  header {
    display: flex;
    align-items: center;
    justify-content: space-between;
    margin-bottom: 16px;
    padding-bottom: 12px;
    border-bottom: 1px solid var(--border);
  }
  header h1 { font-size: 20px; font-weight: 600; }
  header h1 span { color: var(--accent); }
  .meta { font-size: 12px; color: var(--text-dim); }
  .badge { padding: 1px 8px; border-radius: 10px; font-size: 12px; border: 1px solid var(--border); margin-left: 6px; }
  .badge.live { color: var(--green); border-color: var(--green); }
  .badge.busy { color: var(--yellow); border-color: var(--yellow); }
  .badge.down { color: var(--red); border-color: var(--red); }
  .card { background: var(--surface); border: 1px solid var(--border); border-radius: 8px; overflow: hidden; }
  table { width: 100%; border-collapse: collapse; }
  th, td { text-align: left; padding: 6px 12px; border-bottom: 1px solid var(--border); vertical-align: top; }
  th { color: var(--text-dim); font-weight: 500; font-size: 12px; }
  td.when { white-space: nowrap; color: var(--text-dim); font-size: 12px; }
  td.obj { font-family: monospace; font-size: 12px; color: var(--text-dim); }
  .empty { padding: 24px; text-align: center; color: var(--text-dim); }
  footer { display: flex; gap: 8px; align-items: center; justify-content: flex-end; margin-top: 12px; }
  .btn { padding: 4px 12px; border-radius: 6px; border: 1px solid var(--border); background: var(--surface); color: var(--text); cursor: pointer; font-size: 13px; }
  .btn:disabled { opacity: 0.4; cursor: default; }
</style>
</head>
<body>
<header>
  <h1><span>audit</span>watch</h1>
  <div class="meta">
    <span id="conn" class="badge down">disconnected</span>
    <span id="busy" class="badge" style="display:none"></span>
  </div>
</header>

<div class="card">
  <table>
    <thead><tr><th>When</th><th>Author</th><th>Environment</th><th>Object</th><th>Log</th></tr></thead>
    <tbody id="rows"></tbody>
  </table>
  <div class="empty" id="empty">Loading&hellip;</div>
</div>

<footer>
  <span class="meta" id="paging">-</span>
  <button class="btn" id="prev" onclick="goTo(prevPage)" disabled>&larr; Newer</button>
  <button class="btn" id="next" onclick="goTo(nextPage)" disabled>Older &rarr;</button>
  <button class="btn" onclick="refresh()">Reload</button>
</footer>

<script>
let prevPage = 0, nextPage = 0;

function esc(s) {
  const d = document.createElement('div');
  d.textContent = s == null ? '' : String(s);
  return d.innerHTML;
}

function render(snap) {
  const busy = document.getElementById('busy');
  if (snap.isSaving || snap.isLoading) {
    busy.style.display = '';
    busy.className = 'badge busy';
    busy.textContent = snap.isSaving ? 'saving' : 'loading';
  } else {
    busy.style.display = 'none';
  }

  const rows = document.getElementById('rows');
  const empty = document.getElementById('empty');
  const entries = (snap.model && snap.model.results) || [];
  rows.innerHTML = entries.map(e =>
    '<tr><td class="when">' + esc(new Date(e.created_date).toLocaleString()) + '</td>' +
    '<td>' + esc(e.author) + '</td>' +
    '<td>' + esc(e.environment) + '</td>' +
    '<td class="obj">' + esc([e.related_object_type, e.related_object_id].filter(Boolean).join(' ')) + '</td>' +
    '<td>' + esc(e.log) + '</td></tr>').join('');
  if (!snap.model) {
    empty.style.display = '';
    empty.textContent = snap.isLoading ? 'Loading…' : 'Nothing loaded';
  } else {
    empty.style.display = entries.length ? 'none' : '';
    empty.textContent = 'No audit entries';
  }

  const p = snap.paging;
  prevPage = p && p.previous || 0;
  nextPage = p && p.next || 0;
  document.getElementById('prev').disabled = !prevPage;
  document.getElementById('next').disabled = !nextPage;
  document.getElementById('paging').textContent = p
    ? 'Page ' + p.page + ' of ' + Math.max(1, Math.ceil(p.count / p.page_size)) + ' (' + p.count + ' entries)'
    : '-';
}

async function goTo(n) {
  if (!n) return;
  await fetch('/api/audit-log/page?n=' + n, { method: 'POST' });
}

async function refresh() {
  await fetch('/api/audit-log/refresh', { method: 'POST' });
}

function connect() {
  const conn = document.getElementById('conn');
  const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  const ws = new WebSocket(proto + location.host + '/api/audit-log/stream');
  ws.onopen = () => { conn.className = 'badge live'; conn.textContent = 'live'; };
  ws.onmessage = ev => render(JSON.parse(ev.data));
  ws.onclose = () => {
    conn.className = 'badge down';
    conn.textContent = 'disconnected';
    setTimeout(connect, 2000);
  };
}

fetch('/api/audit-log').then(r => r.json()).then(render).catch(() => {});
connect();
</script>
</body>
</html>
`
