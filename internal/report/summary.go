package report

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// CarDetail is one car line of a period summary
type CarDetail struct {
	Plate       string  `json:"plate"`
	Description string  `json:"description"`
	Area        float64 `json:"area"`
	Cost        int     `json:"cost"`
	LaborCost   float64 `json:"labor_cost"`
	Date        string  `json:"date"`
	Executor    string  `json:"executor"`
}

// Summary aggregates the cars reported within a period
type Summary struct {
	Period
	Cars      int         `json:"cars"` // distinct plates
	Area      float64     `json:"area"`
	Cost      int         `json:"cost"`
	LaborCost float64     `json:"labor_cost"`
	Details   []CarDetail `json:"details"`
}

// Summary aggregates all reports dated within the period
func (s *Service) Summary(period Period) (*Summary, error) {
	reports, err := s.db.ListReports(period.From, period.To)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].Date != reports[j].Date {
			return reports[i].Date < reports[j].Date
		}
		return reports[i].CreatedAt.Before(reports[j].CreatedAt)
	})

	names := make(map[string]string)
	plates := make(map[string]struct{})
	summary := &Summary{Period: period, Details: []CarDetail{}}
	for _, r := range reports {
		executor, err := s.executorName(r.UserID, names)
		if err != nil {
			return nil, err
		}
		for _, car := range r.Cars {
			plates[car.Plate] = struct{}{}
			summary.Area += car.Area
			summary.Cost += car.Cost
			summary.LaborCost += car.LaborCost
			summary.Details = append(summary.Details, CarDetail{
				Plate:       car.Plate,
				Description: car.Description,
				Area:        car.Area,
				Cost:        car.Cost,
				LaborCost:   car.LaborCost,
				Date:        r.Date,
				Executor:    executor,
			})
		}
	}
	summary.Cars = len(plates)
	summary.Area = math.Round(summary.Area*100) / 100
	return summary, nil
}

func (s *Service) executorName(userID string, cache map[string]string) (string, error) {
	if name, ok := cache[userID]; ok {
		return name, nil
	}
	user, err := s.db.GetUser(userID)
	switch {
	case errors.Is(err, ErrNotFound):
		cache[userID] = ""
	case err != nil:
		return "", fmt.Errorf("getting user: %w", err)
	default:
		cache[userID] = user.Name
	}
	return cache[userID], nil
}

// RenderSummary formats a summary as a chat message
func RenderSummary(summary *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Отчет с %s по %s\n", summary.From, summary.To)
	fmt.Fprintf(&b, "🚗 Машин оклеено: %d\n", summary.Cars)
	fmt.Fprintf(&b, "📏 Площадь пленки (м²): %s\n", formatNumber(summary.Area))
	fmt.Fprintf(&b, "💰 Стоимость материалов (руб): %d\n", summary.Cost)
	fmt.Fprintf(&b, "🔧 Общая стоимость работ (руб): %d", int(summary.LaborCost))

	if len(summary.Details) == 0 {
		b.WriteString("\n\nНет данных по машинам за выбранный период.")
		return b.String()
	}

	b.WriteString("\n\nДетализация:\n")
	for i, d := range summary.Details {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, d.Plate, d.Description)
		fmt.Fprintf(&b, "    Площадь: %.2f м² | Материалы: %d ₽ | Работы: %s ₽\n", d.Area, d.Cost, formatNumber(d.LaborCost))
		fmt.Fprintf(&b, "    Исполнитель: %s\n", d.Executor)
		fmt.Fprintf(&b, "    Дата: %s\n", d.Date)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// formatNumber prints whole numbers without a fraction and others with the
// shortest exact representation.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
