package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ir-transmitter/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"hz": func(f float64) string {
		return fmt.Sprintf("%.0f Hz", f)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>IR Transmitter</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
</style>
</head>
<body>
<h1>IR Transmitter</h1>

<h2>State</h2>
<table>
<tr><th>State</th><td>{{stateOrUnknown (printf "%s" .State)}}</td></tr>
<tr><th>Running</th><td class="{{if .Running}}on{{else}}off{{end}}">{{if .Running}}yes{{else}}no{{end}}</td></tr>
<tr><th>Frequency</th><td>#{{.Frequency}}{{if .Period}} ({{hz .FrequencyHz}}, {{.Period}} ticks){{end}}</td></tr>
<tr><th>Pulse width</th><td>{{.PulseWidth}} ticks</td></tr>
<tr><th>Continuous</th><td>{{if .Continuous}}on{{else}}off{{end}}</td></tr>
</table>
{{if .Controls}}
<h2>Control</h2>
<p>
<form method="post" action="/run"><button type="submit">Run</button></form>
<form method="post" action="/continuous"><input type="hidden" name="on" value="{{not .Continuous}}"><button type="submit">Continuous {{if .Continuous}}off{{else}}on{{end}}</button></form>
</p>
<p>
<form method="post" action="/frequency"><select name="n">{{range $i, $f := .Config.FrequenciesHz}}<option value="{{$i}}"{{if eq $i $.FrequencyIndex}} selected{{end}}>#{{$i}} {{hz $f}}</option>{{end}}</select> <button type="submit">Set frequency</button></form>
</p>
{{end}}
<h2>Counters</h2>
<table>
<tr><th>Bursts started</th><td>{{.Counts.BurstsStarted}}</td></tr>
<tr><th>Bursts completed</th><td>{{.Counts.BurstsCompleted}}</td></tr>
<tr><th>Edges</th><td>{{.Counts.Edges}}</td></tr>
<tr><th>Write errors</th><td>{{.Counts.WriteErrors}}</td></tr>
<tr><th>Ticks</th><td>{{.Ticks}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Output</th><td>{{.Config.Backend}} pin {{.Config.Pin}}</td></tr>
<tr><th>Tick</th><td>{{.Config.Tick}}</td></tr>
<tr><th>Mode</th><td>{{.Config.Mode}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, controls bool) error {
	// Snapshot has methods but the template needs plain fields.
	data := struct {
		status.Snapshot
		Uptime         time.Duration
		FrequencyHz    float64
		FrequencyIndex int
		Controls       bool
	}{
		Snapshot:       snap,
		Uptime:         snap.Uptime(),
		FrequencyHz:    snap.FrequencyHz(),
		FrequencyIndex: int(snap.Frequency),
		Controls:       controls,
	}
	return indexTmpl.Execute(w, data)
}
