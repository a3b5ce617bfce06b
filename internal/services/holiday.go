package services

import (
	"sort"
	"strings"
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/es"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/it"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/se"
	"github.com/rickar/cal/v2/us"
)

// countryChina is resolved through the lunar calendar, which also knows
// the make-up working days.
const countryChina = "CN"

type CountryInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// HolidayService answers whether an interview template falls on a working
// day of a group's country.
type HolidayService struct {
	calendars map[string]*cal.BusinessCalendar
}

func NewHolidayService() *HolidayService {
	s := &HolidayService{calendars: make(map[string]*cal.BusinessCalendar)}
	s.register("US", "United States", us.Holidays...)
	s.register("GB", "United Kingdom", gb.Holidays...)
	s.register("DE", "Germany", de.Holidays...)
	s.register("FR", "France", fr.Holidays...)
	s.register("JP", "Japan", jp.Holidays...)
	s.register("AU", "Australia", au.HolidaysNSW...)
	s.register("CA", "Canada", ca.Holidays...)
	s.register("IT", "Italy", it.Holidays...)
	s.register("ES", "Spain", es.Holidays...)
	s.register("NL", "Netherlands", nl.Holidays...)
	s.register("SE", "Sweden", se.Holidays...)
	return s
}

func (s *HolidayService) register(code, name string, holidays ...*cal.Holiday) {
	c := cal.NewBusinessCalendar()
	c.Name = name
	c.AddHoliday(holidays...)
	s.calendars[code] = c
}

// IsWorkday reports whether t is a working day in countryCode. Unknown codes
// only exclude weekends.
func (s *HolidayService) IsWorkday(t time.Time, countryCode string) bool {
	code := strings.ToUpper(countryCode)
	if code == countryChina {
		return isWorkdayChina(t)
	}
	c, ok := s.calendars[code]
	if !ok {
		return !cal.IsWeekend(t)
	}
	return c.IsWorkday(t)
}

func isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	if holiday := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay()); holiday != nil {
		return holiday.IsWork()
	}
	return !cal.IsWeekend(t)
}

func (s *HolidayService) Supported() []CountryInfo {
	countries := []CountryInfo{{Code: countryChina, Name: "China"}}
	for code, c := range s.calendars {
		countries = append(countries, CountryInfo{Code: code, Name: c.Name})
	}
	sort.Slice(countries, func(i, j int) bool { return countries[i].Code < countries[j].Code })
	return countries
}
