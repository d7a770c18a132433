package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/vacuum-controller/internal/command"
	"github.com/sweeney/vacuum-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Vacuum Controller</title>
<style>
body { font: 14px/1.4 ui-monospace, monospace; max-width: 640px; margin: 1.5em auto; padding: 0 1em; }
h1 { font-size: 1.3em; }
h2 { font-size: 1.05em; margin-top: 1.5em; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: 3px 6px; border-bottom: 1px solid #e4e4e4; }
th { width: 35%; font-weight: normal; color: #555; }
.on, .connected { color: #1a7f37; font-weight: bold; }
.off { color: #999; }
.disconnected, .error { color: #c62828; }
form { display: inline; }
button { font: inherit; margin: 2px; padding: 2px 8px; }
</style>
</head>
<body>
<h1>Vacuum Controller{{if .Config.Name}} ({{.Config.Name}}){{end}}</h1>

<h2>State</h2>
<table>
<tr><th>Watchdog</th><td id="watchdog" class="{{if .Vacuum.Watchdog}}on{{else}}off{{end}}">{{onOff .Vacuum.Watchdog}}</td></tr>
<tr><th>Valve Open</th><td id="valve" class="{{if .Vacuum.ValveOpen}}on{{else}}off{{end}}">{{onOff .Vacuum.ValveOpen}}</td></tr>
<tr><th>Pump Running</th><td id="pump" class="{{if .Vacuum.PumpRunning}}on{{else}}off{{end}}">{{onOff .Vacuum.PumpRunning}}</td></tr>
<tr><th>Forced Vacuum</th><td id="forced" class="{{if .Vacuum.ForcedVacuum}}on{{else}}off{{end}}">{{onOff .Vacuum.ForcedVacuum}}</td></tr>
<tr><th>Next Cycle Armed</th><td>{{if .Armed}}yes{{else}}no{{end}}</td></tr>
{{if not .LastCycle.IsZero}}<tr><th>Last Cycle</th><td>{{.LastCycle.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
{{if .LastCommand}}<tr><th>Last Command</th><td>{{.LastCommand}}</td></tr>{{end}}
{{if .LastError}}<tr><th>Last Error</th><td class="error">{{.LastError}}</td></tr>{{end}}
</table>

<h2>Commands</h2>
<p>
{{range .Commands}}<form method="post" action="/command/{{.Name}}"><button type="submit" title="{{.Help}}">{{.Name}}</button></form>
{{end}}</p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic Prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Cycles</th><td>{{.Counts.Cycles}}</td></tr>
<tr><th>Commands</th><td>{{.Counts.Commands}} ({{.Counts.CommandErrors}} failed)</td></tr>
<tr><th>Dispatched</th><td>{{.Counts.Dispatched}} ({{.Counts.DispatchErrors}} failed)</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Pins</th><td>{{.Config.Chip}} pump={{.Config.PumpPin}} open={{.Config.ValveOpenPin}} close={{.Config.ValveClosePin}}</td></tr>
<tr><th>Cycle Period</th><td>{{.Config.CyclePeriod}}</td></tr>
<tr><th>Pump Lead</th><td>{{.Config.PumpLeadTime}}</td></tr>
<tr><th>Valve Settle</th><td>{{.Config.ValveCloseSettle}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

// formatUptime renders d as e.g. "3d 4h 5m 6s", omitting leading zero units.
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	units := []struct {
		suffix string
		size   int64
	}{{"d", 86400}, {"h", 3600}, {"m", 60}}

	var parts []string
	for _, u := range units {
		if n := secs / u.size; n > 0 || len(parts) > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
		}
		secs %= u.size
	}
	parts = append(parts, fmt.Sprintf("%ds", secs))
	return strings.Join(parts, " ")
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Commands []command.Command
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Commands: command.List(),
	}
	return indexTmpl.Execute(w, data)
}
