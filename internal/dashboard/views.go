package dashboard

import (
	"html/template"
	"strconv"

	"trader-insights/internal/analytics"
	"trader-insights/internal/common"
	"trader-insights/internal/ml"
)

var (
	layout        = template.Must(template.New("layout").Parse(layoutHTML))
	predictPage   = template.Must(template.Must(layout.Clone()).Parse(predictHTML))
	dashboardPage = template.Must(template.Must(layout.Clone()).Parse(dashboardHTML))
)

type predictView struct {
	Form   ml.Features
	Result *ml.Prediction
	Error  string
}

func (predictView) Page() string { return "predict" }

func (predictView) Sentiments() []string {
	return []string{common.SentimentFear, common.SentimentGreed}
}

type barView struct {
	Label string
	Text  string
	Width float64 // percent of the largest bar
}

type chartView struct {
	Title string
	Bars  []barView
}

type dashboardView struct {
	Error   string
	Summary analytics.Summary
	Charts  []chartView
	Table   [][]string
	Insight []chartView
}

func (dashboardView) Page() string { return "dashboard" }

func newDashboardView(s analytics.Summary) dashboardView {
	table := make([][]string, 0, len(s.Performance))
	for _, row := range s.Performance {
		table = append(table, row.Cells())
	}

	return dashboardView{
		Summary: s,
		Charts: []chartView{
			newChart("Average Trade Size by Sentiment", s.AvgSizeBySentiment, 2),
			newChart("Trading Activity by Sentiment", s.TradesBySentiment, 0),
			newChart("Long vs Short Distribution", s.SideDistribution, 0),
		},
		Table:   table,
		Insight: []chartView{newChart("Prediction Distribution", s.PredictionDistribution, 0)},
	}
}

func newChart(title string, bars []analytics.Bar, decimals int) chartView {
	peak := 0.0
	for _, b := range bars {
		if b.Value > peak {
			peak = b.Value
		}
	}

	views := make([]barView, 0, len(bars))
	for _, b := range bars {
		width := 0.0
		if peak > 0 && b.Value > 0 {
			width = b.Value / peak * 100
		}
		views = append(views, barView{
			Label: b.Label,
			Text:  strconv.FormatFloat(b.Value, 'f', decimals, 64),
			Width: width,
		})
	}
	return chartView{Title: title, Bars: views}
}

const layoutHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Trader Insights</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; background-color: #f5f5f5; display: flex; min-height: 100vh; }
        .sidebar { width: 220px; background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; }
        .sidebar h2 { margin-top: 0; }
        .sidebar a { display: block; color: white; text-decoration: none; padding: 8px 10px; border-radius: 6px; margin-bottom: 6px; }
        .sidebar a.active { background-color: rgba(255,255,255,0.25); font-weight: bold; }
        .container { flex: 1; max-width: 1100px; padding: 20px 40px; }
        .caption { color: #666; margin-top: -10px; }
        .card { background: white; border-radius: 10px; padding: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); margin-bottom: 20px; }
        .card h3 { margin-top: 0; color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(300px, 1fr)); gap: 20px; }
        .metric-label { font-weight: 500; color: #666; }
        .metric-value { font-size: 2em; font-weight: bold; color: #333; }
        .banner { padding: 12px 16px; border-radius: 8px; margin: 12px 0; font-weight: bold; }
        .banner-success { background-color: #d4edda; color: #155724; }
        .banner-error { background-color: #f8d7da; color: #721c24; }
        .banner-info { background-color: #d1ecf1; color: #0c5460; font-weight: normal; }
        .bar-row { display: flex; align-items: center; margin: 6px 0; }
        .bar-label { width: 140px; color: #666; }
        .bar-track { flex: 1; background-color: #eee; border-radius: 6px; overflow: hidden; height: 20px; }
        .bar-fill { height: 100%; background-color: #667eea; }
        .bar-value { width: 100px; text-align: right; font-weight: bold; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px; border-bottom: 1px solid #eee; }
        th { background-color: #f8f9fa; font-weight: 600; }
        label { display: block; margin: 12px 0 4px; color: #666; }
        input, select { padding: 8px; width: 240px; border: 1px solid #ccc; border-radius: 6px; }
        button { margin-top: 16px; padding: 8px 24px; border: none; border-radius: 6px; background-color: #667eea; color: white; font-weight: bold; cursor: pointer; }
    </style>
</head>
<body>
    <nav class="sidebar">
        <h2>Navigation</h2>
        <a href="/predict" {{if eq .Page "predict"}}class="active"{{end}}>Prediction Tool</a>
        <a href="/dashboard" {{if eq .Page "dashboard"}}class="active"{{end}}>Dashboard</a>
    </nav>
    <main class="container">
        {{template "content" .}}
    </main>
</body>
</html>
`

const predictHTML = `{{define "content"}}
<h1>Trader Profitability Predictor</h1>
<p class="caption">Estimate the likelihood of a profitable trading day based on behavior and market sentiment.</p>
<div class="card">
    <form method="POST" action="/predict">
        <label for="avg_trade_size">Average Trade Size (USD)</label>
        <input type="number" step="any" id="avg_trade_size" name="avg_trade_size" value="{{.Form.AvgTradeSize}}">
        <label for="trades">Number of Trades</label>
        <input type="number" step="1" id="trades" name="trades" value="{{.Form.TradeCount}}">
        <label for="sentiment">Market Sentiment</label>
        <select id="sentiment" name="sentiment">
            {{- $current := .Form.Sentiment.String}}
            {{- range .Sentiments}}
            <option value="{{.}}" {{if eq . $current}}selected{{end}}>{{.}}</option>
            {{- end}}
        </select>
        <div><button type="submit">Predict</button></div>
    </form>
</div>
{{with .Error}}<div class="banner banner-error">{{.}}</div>{{end}}
{{with .Result}}
    {{if .Profitable}}
    <div class="banner banner-success">Predicted: Profitable Day ✅</div>
    {{else}}
    <div class="banner banner-error">Predicted: Loss Day ⚠️</div>
    {{end}}
    <div class="banner banner-info">Confidence: {{.ConfidenceText}}</div>
{{end}}
{{end}}`

const dashboardHTML = `{{define "chart"}}
<div class="card">
    <h3>{{.Title}}</h3>
    {{range .Bars}}
    <div class="bar-row">
        <span class="bar-label">{{.Label}}</span>
        <div class="bar-track"><div class="bar-fill" style="width: {{.Width}}%"></div></div>
        <span class="bar-value">{{.Text}}</span>
    </div>
    {{end}}
</div>
{{end}}
{{define "content"}}
<h1>Trading Behavior Dashboard</h1>
<p class="caption">Interactive insights into trader performance under Fear vs Greed market sentiment.</p>
{{if .Error}}
<div class="banner banner-error">Dashboard unavailable: {{.Error}}</div>
{{else}}
<h2>Overall Performance</h2>
<div class="grid">
    <div class="card">
        <div class="metric-label">{{.Summary.AvgTradePnL.Label}}</div>
        <div class="metric-value">{{.Summary.AvgTradePnL.Text}}</div>
    </div>
    <div class="card">
        <div class="metric-label">{{.Summary.WinRate.Label}}</div>
        <div class="metric-value">{{.Summary.WinRate.Text}}</div>
    </div>
</div>
{{range .Charts}}{{template "chart" .}}{{end}}
<div class="card">
    <h3>Performance Summary Table</h3>
    <table>
        <thead>
            <tr><th>classification</th><th>avg_pnl</th><th>win_rate</th><th>avg_size</th><th>trades</th></tr>
        </thead>
        <tbody>
            {{range .Table}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
            {{end}}
        </tbody>
    </table>
</div>
<h2>Predicted Profitability Insights</h2>
<div class="card">
    <div class="metric-label">{{.Summary.PredictedProfitable.Label}}</div>
    <div class="metric-value">{{.Summary.PredictedProfitable.Text}}</div>
</div>
{{range .Insight}}{{template "chart" .}}{{end}}
{{end}}
{{end}}`
