package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	statisticsdomain "github.com/hostlify/hostlify/internal/statistics/domain"
)

func (s *Server) StatisticsResources(c *gin.Context) {
	report, err := s.statsSvc.Resources(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "resources": report})
}

func (s *Server) StatisticsSpending(c *gin.Context) {
	report, err := s.statsSvc.Spending(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "spending": newSpendingView(report)})
}

func (s *Server) StatisticsEco(c *gin.Context) {
	report, err := s.statsSvc.Eco(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "eco": report})
}

type monthSpendingView struct {
	Month    string             `json:"month"`
	BySource map[string]float64 `json:"by_source"`
	Total    float64            `json:"total"`
}

type spendingView struct {
	Months []monthSpendingView `json:"months"`
	Total  float64             `json:"total"`
}

func newSpendingView(report *statisticsdomain.SpendingReport) spendingView {
	view := spendingView{
		Months: make([]monthSpendingView, 0, len(report.Months)),
		Total:  groszToPLN(report.Total),
	}
	for _, month := range report.Months {
		bySource := make(map[string]float64, len(month.BySource))
		for source, amount := range month.BySource {
			bySource[source] = groszToPLN(amount)
		}
		view.Months = append(view.Months, monthSpendingView{
			Month:    month.Month,
			BySource: bySource,
			Total:    groszToPLN(month.Total),
		})
	}
	return view
}
