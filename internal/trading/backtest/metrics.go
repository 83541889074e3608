package backtest

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Alias1177/fxsignal/internal/model"
)

// calculateMetrics derives the summary statistics from results.Trades
func calculateMetrics(results *model.BacktestResults) {
	sort.SliceStable(results.Trades, func(i, j int) bool {
		return results.Trades[i].ClosedAt.Before(results.Trades[j].ClosedAt)
	})

	var totalProfit, totalLoss float64
	var wins, losses int
	balance := results.InitialBalance
	results.EquityCurve = []float64{balance}
	returns := make([]float64, 0, len(results.Trades))

	for _, t := range results.Trades {
		results.TotalTrades++
		if t.Won() {
			results.WinningTrades++
			totalProfit += t.Profit
			wins++
			losses = 0
		} else {
			results.LosingTrades++
			totalLoss -= t.Profit
			losses++
			wins = 0
		}
		results.MaxConsecutive.Wins = max(results.MaxConsecutive.Wins, wins)
		results.MaxConsecutive.Losses = max(results.MaxConsecutive.Losses, losses)

		if balance > 0 {
			returns = append(returns, t.Profit/balance)
		}
		balance += t.Profit
		results.EquityCurve = append(results.EquityCurve, balance)

		month := t.ClosedAt.Format("2006-01")
		results.MonthlyReturns[month] += t.Profit / results.InitialBalance * 100
	}
	results.FinalBalance = balance

	if results.TotalTrades > 0 {
		results.WinPercentage = float64(results.WinningTrades) / float64(results.TotalTrades) * 100
	}
	if results.WinningTrades > 0 {
		results.AverageGain = totalProfit / float64(results.WinningTrades)
	}
	if results.LosingTrades > 0 {
		results.AverageLoss = totalLoss / float64(results.LosingTrades)
	}
	if totalLoss > 0 {
		results.ProfitFactor = totalProfit / totalLoss
	} else {
		results.ProfitFactor = totalProfit
	}
	if results.InitialBalance > 0 {
		results.EquityGrowthPercent = (balance - results.InitialBalance) / results.InitialBalance * 100
	}
	results.MaxDrawdown = maxDrawdown(results.EquityCurve)

	// per-trade returns annualized over 252 sessions
	m := mean(returns)
	if sd := stdDev(returns, m); sd > 0 {
		results.SharpeRatio = m / sd * math.Sqrt(252)
	}
}

// maxDrawdown is the largest peak-to-trough fall of the curve in percent
func maxDrawdown(curve []float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	worst := 0.0
	peak := curve[0]
	for _, equity := range curve {
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-equity)/peak)
		}
	}
	return worst * 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSquaredDiff float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)-1))
}

// FormatResults creates a human-readable summary of backtest results
func FormatResults(results *model.BacktestResults) string {
	if results == nil {
		return "No backtest results available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "===== BACKTEST %s =====\n", results.Symbol)
	fmt.Fprintf(&b, "Evaluations: %d | Candidates: %d | Rejected: %d\n",
		results.Evaluations, results.Candidates, results.Rejections)
	fmt.Fprintf(&b, "Total trades: %d\n", results.TotalTrades)
	fmt.Fprintf(&b, "Winning trades: %d (%.2f%%)\n", results.WinningTrades, results.WinPercentage)
	fmt.Fprintf(&b, "Average gain: %.2f | Average loss: %.2f\n", results.AverageGain, results.AverageLoss)
	fmt.Fprintf(&b, "Profit factor: %.2f\n", results.ProfitFactor)
	fmt.Fprintf(&b, "Maximum drawdown: %.2f%%\n", results.MaxDrawdown)
	fmt.Fprintf(&b, "Sharpe ratio: %.2f\n", results.SharpeRatio)
	fmt.Fprintf(&b, "Max consecutive wins: %d | losses: %d\n",
		results.MaxConsecutive.Wins, results.MaxConsecutive.Losses)

	if len(results.MonthlyReturns) > 0 {
		b.WriteString("Monthly returns:\n")
		months := make([]string, 0, len(results.MonthlyReturns))
		for month := range results.MonthlyReturns {
			months = append(months, month)
		}
		sort.Strings(months)
		for _, month := range months {
			fmt.Fprintf(&b, "- %s: %+.2f%%\n", month, results.MonthlyReturns[month])
		}
	}

	fmt.Fprintf(&b, "Balance: %.2f -> %.2f (%+.2f%%)",
		results.InitialBalance, results.FinalBalance, results.EquityGrowthPercent)
	return b.String()
}
