// Package web serves the single-page dashboard and pushes run list updates
// to it over a websocket.
package web

import (
	"html/template"
	"io"
)

// PageData feeds the dashboard template.
type PageData struct {
	Title    string
	Runs     []string
	Selected string
	Panels   []PanelLink
}

// PanelLink names a panel card on the page.
type PanelLink struct {
	Kind  string
	Title string
}

var dashboard = template.Must(template.New("dashboard").Parse(dashboardHTML))

// Render writes the dashboard page.
func Render(w io.Writer, data PageData) error {
	return dashboard.Execute(w, data)
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --bg-primary: #f0f1f9;
            --bg-card: #ffffff;
            --banner: #18207a;
            --text-primary: #1e293b;
            --text-secondary: #64748b;
            --accent: #3b82f6;
            --border: #cbd5e1;
        }

        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
        }

        .header {
            background: var(--banner);
            color: #e9e9e9;
            padding: 2.5rem 3rem;
            font-size: 2.5rem;
            display: flex;
            justify-content: space-between;
            align-items: center;
        }

        .status { font-size: 0.9rem; }

        main { margin: 2rem 3rem; display: grid; gap: 1.5rem; }

        .card {
            background: var(--bg-card);
            border: 1px solid var(--border);
            border-radius: 0.5rem;
            padding: 1.25rem 1.5rem;
        }

        .card h4 { margin-bottom: 1rem; }

        .row { display: flex; gap: 1.5rem; flex-wrap: wrap; align-items: flex-start; }

        select { width: 620px; height: 40px; font-size: 12pt; }

        .previews img { max-width: 48%; }

        .panel-image { position: relative; display: inline-block; cursor: crosshair; user-select: none; }
        .panel-image img { display: block; max-width: 800px; }
        .selection { position: absolute; border: 1px dashed #fff; background: rgba(255,255,255,0.15); display: none; pointer-events: none; }

        .hists img { display: block; max-width: 560px; margin-bottom: 0.5rem; }

        .stats { display: grid; grid-template-columns: repeat(2, minmax(220px, 1fr)); gap: 0.25rem 2rem; margin-top: 1rem; }
        .stats span { color: var(--text-secondary); }
        .errors { color: #b91c1c; font-size: 0.9rem; }
        .hint { color: var(--text-secondary); font-size: 0.85rem; margin-top: 0.5rem; }
    </style>
</head>
<body>
    <div class="header">
        <div>Simulated Radio Observation</div>
        <div class="status" id="status">connecting…</div>
    </div>

    <main>
        <div class="card">
            <h4>Model Selection</h4>
            <div class="row">
                <label for="runs">Select output folder:</label>
                <select id="runs">
                    {{range .Runs}}<option value="{{.}}"{{if eq . $.Selected}} selected{{end}}>{{.}}</option>{{end}}
                </select>
            </div>
            <div class="errors" id="errors"></div>
        </div>

        <div class="card">
            <h4>Output of Observation</h4>
            <div class="row previews">
                <img id="skymodel" alt="sky model">
                <img id="psf" alt="psf">
            </div>
        </div>

        {{range .Panels}}
        <div class="card" id="card-{{.Kind}}" data-panel="{{.Kind}}">
            <h4>Analysis of {{.Title}}-Image</h4>
            <div class="row">
                <div>
                    <div class="panel-image">
                        <img class="image" alt="{{.Title}} image" draggable="false">
                        <div class="selection"></div>
                    </div>
                    <div class="hint">Drag on the image to histogram a region; double-click to reset.</div>
                    <h4 style="margin-top:1rem">Statistical information</h4>
                    <div class="stats"></div>
                </div>
                <div class="hists">
                    <img class="hist-full" alt="{{.Title}} distribution">
                    <img class="hist-onsource" alt="onsource distribution">
                    <img class="hist-offsource" alt="offsource distribution">
                </div>
            </div>
        </div>
        {{end}}
    </main>

    <script>
        class SimDashboard {
            constructor() {
                this.select = document.getElementById('runs');
                this.run = null;
                this.select.addEventListener('change', () => this.load(this.select.value));
                document.querySelectorAll('[data-panel]').forEach(card => this.bindSelection(card));
                if (this.select.value) this.load(this.select.value);
                this.connect();
            }

            base(run) { return '/api/runs/' + encodeURIComponent(run); }

            async load(run) {
                const resp = await fetch(this.base(run));
                if (!resp.ok) { this.showErrors(['failed to load ' + run]); return; }
                this.run = await resp.json();
                const stamp = '?v=' + encodeURIComponent(this.run.scan_id);
                document.getElementById('psf').src = this.run.psf_url ? this.run.psf_url + stamp : '';
                document.getElementById('skymodel').src = this.run.skymodel_url ? this.run.skymodel_url + stamp : '';
                for (const p of this.run.panels) {
                    const card = document.getElementById('card-' + p.kind);
                    if (!card) continue;
                    card.dataset.rows = p.rows;
                    card.dataset.cols = p.cols;
                    const pb = this.base(run) + '/panels/' + p.kind;
                    card.querySelector('.image').src = pb + '/image.png' + stamp;
                    for (const sub of ['full', 'onsource', 'offsource']) {
                        card.querySelector('.hist-' + sub).src = pb + '/' + sub + '/histogram.png' + stamp;
                    }
                    this.showStats(card, p.stats.full.summary);
                }
            }

            showStats(card, s) {
                const rows = [
                    ['maximum pixel value', s.max], ['standard deviation about mean', s.sigma],
                    ['minimum pixel value', s.min], ['sum of pixel values', s.sum],
                    ['mean pixel value', s.mean], ['size of all pixel values', s.size],
                    ['median pixel value', s.median], ['total pixels', s.total],
                ];
                card.querySelector('.stats').innerHTML = rows
                    .map(([k, v]) => '<div><span>' + k + ':</span> ' + (s.empty && k !== 'total pixels' ? 'no data' : v) + '</div>')
                    .join('');
            }

            showErrors(list) {
                document.getElementById('errors').textContent = list.join('; ');
            }

            // pixel converts a point on the displayed image to data coordinates;
            // the image is drawn with row 0 at the bottom.
            pixel(card, img, x, y) {
                const cols = Number(card.dataset.cols), rows = Number(card.dataset.rows);
                return { x: x / img.clientWidth * cols, y: (img.clientHeight - y) / img.clientHeight * rows };
            }

            bindSelection(card) {
                const img = card.querySelector('.image');
                const box = card.querySelector('.selection');
                let start = null;
                const local = e => {
                    const r = img.getBoundingClientRect();
                    return { x: Math.min(Math.max(e.clientX - r.left, 0), r.width), y: Math.min(Math.max(e.clientY - r.top, 0), r.height) };
                };
                img.addEventListener('mousedown', e => { start = local(e); box.style.display = 'none'; });
                window.addEventListener('mousemove', e => {
                    if (!start) return;
                    const p = local(e);
                    Object.assign(box.style, {
                        display: 'block',
                        left: Math.min(start.x, p.x) + 'px', top: Math.min(start.y, p.y) + 'px',
                        width: Math.abs(p.x - start.x) + 'px', height: Math.abs(p.y - start.y) + 'px',
                    });
                });
                window.addEventListener('mouseup', e => {
                    if (!start) return;
                    const end = local(e);
                    const a = this.pixel(card, img, start.x, start.y), b = this.pixel(card, img, end.x, end.y);
                    start = null;
                    if (Math.abs(a.x - b.x) < 1 && Math.abs(a.y - b.y) < 1) return;
                    this.interact(card, 'select', { x0: a.x, x1: b.x, y0: a.y, y1: b.y });
                });
                img.addEventListener('dblclick', () => { box.style.display = 'none'; this.interact(card, 'reset', {}); });
            }

            async interact(card, kind, sel) {
                if (!this.run) return;
                const pb = this.base(this.run.name) + '/panels/' + card.dataset.panel;
                const resp = await fetch(pb + '/' + kind, {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify(sel),
                });
                if (!resp.ok) return;
                const region = await resp.json();
                const q = region.whole ? '' : '?' + new URLSearchParams(sel).toString();
                card.querySelector('.hist-full').src = pb + '/full/histogram.png' + q;
                this.showStats(card, region.summary);
            }

            connect() {
                const status = document.getElementById('status');
                const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
                const ws = new WebSocket(proto + location.host + '/ws');
                ws.onopen = () => { status.textContent = 'live'; };
                ws.onclose = () => { status.textContent = 'disconnected'; setTimeout(() => this.connect(), 3000); };
                ws.onmessage = ev => {
                    const msg = JSON.parse(ev.data);
                    if (msg.type !== 'runs') return;
                    const current = this.select.value;
                    this.select.innerHTML = '';
                    for (const name of msg.runs) {
                        const opt = document.createElement('option');
                        opt.value = opt.textContent = name;
                        this.select.appendChild(opt);
                    }
                    this.select.value = msg.runs.includes(current) ? current : (msg.runs[0] || '');
                    this.showErrors(msg.failed ? [msg.failed + ' run(s) failed to load'] : []);
                    if (this.select.value) this.load(this.select.value);
                };
            }
        }

        new SimDashboard();
    </script>
</body>
</html>`
