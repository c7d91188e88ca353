package api

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>SiriDB Cluster Status</title>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --bg:#0f1117;--bg-card:#161b22;--border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;
  --green:#3fb950;--red:#f85149;--yellow:#d29922;--radius:8px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
.container{max-width:960px;margin:0 auto;padding:24px}
header{display:flex;align-items:center;gap:12px;margin-bottom:24px}
h1{font-size:20px;font-weight:700}
.badge{display:inline-flex;align-items:center;gap:4px;padding:2px 10px;border-radius:12px;font-size:12px;font-weight:600;border:1px solid var(--border)}
.badge-healthy{color:var(--green);border-color:var(--green)}
.badge-unhealthy{color:var(--red);border-color:var(--red)}
table{width:100%;border-collapse:collapse;background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);overflow:hidden}
th,td{text-align:left;padding:10px 14px;border-bottom:1px solid var(--border);font-size:14px}
th{color:var(--text-muted);font-weight:600;font-size:12px;text-transform:uppercase}
tr:last-child td{border-bottom:none}
.dot{display:inline-block;width:8px;height:8px;border-radius:50%;margin-right:6px}
.dot-up{background:var(--green)}
.dot-down{background:var(--red)}
.dot-warn{background:var(--yellow)}
.muted{color:var(--text-muted);font-size:13px;margin-top:16px}
</style>
</head>
<body>
<div class="container">
<header>
<h1>SiriDB Cluster</h1>
<span class="badge" id="overall-badge">loading…</span>
</header>
<table>
<thead><tr><th>Endpoint</th><th>Weight</th><th>Backup</th><th>Connected</th><th>Available</th></tr></thead>
<tbody id="endpoint-rows"><tr><td colspan="5">loading…</td></tr></tbody>
</table>
<p class="muted" id="uptime"></p>
</div>
<script>
function dot(ok) { return '<span class="dot ' + (ok ? 'dot-up' : 'dot-down') + '"></span>' + (ok ? 'yes' : 'no'); }

async function refresh() {
  try {
    const [statusRes, healthRes] = await Promise.all([fetch('/status'), fetch('/health')]);
    const status = await statusRes.json();
    const health = await healthRes.json();

    const badge = document.getElementById('overall-badge');
    badge.textContent = health.status;
    badge.className = 'badge ' + (health.status === 'healthy' ? 'badge-healthy' : 'badge-unhealthy');

    const rows = status.endpoints.map(function(ep) {
      return '<tr><td>' + ep.addr + '</td><td>' + ep.weight + '</td><td>' + (ep.is_backup ? 'yes' : 'no') +
        '</td><td>' + dot(ep.connected) + '</td><td>' + dot(ep.available) + '</td></tr>';
    }).join('');
    document.getElementById('endpoint-rows').innerHTML = rows || '<tr><td colspan="5">no endpoints configured</td></tr>';

    document.getElementById('uptime').textContent =
      'db ' + status.dbname + ' · uptime ' + status.uptime_seconds + 's · ' + status.goroutines + ' goroutines';
  } catch (e) {
    document.getElementById('overall-badge').textContent = 'unreachable';
  }
}

refresh();
setInterval(refresh, 5000);
</script>
</body>
</html>`
