package skill

import (
	"fmt"
	"strings"

	"relay-ai/internal/domain"
)

// Builtin skill names.
const (
	SkillRoadmap = "get_skill_roadmap"
	SkillFlights = "get_flights"
	SkillHotels  = "suggest_hotels"
)

// Builtins returns the builtin skills keyed by name.
func Builtins() map[string]domain.SkillFunc {
	return map[string]domain.SkillFunc{
		SkillRoadmap: Roadmap,
		SkillFlights: Flights,
		SkillHotels:  Hotels,
	}
}

type roadmap struct {
	keyword string
	text    string
}

// Checked in order; the first keyword contained in the field wins.
var roadmaps = []roadmap{
	{"software", "🧑‍💻 Software Engineering Roadmap:\n1. Learn Python or Java\n2. Study Data Structures\n3. Build full-stack apps\n4. Version control (Git)\n5. Interview prep"},
	{"data", "📊 Data Science Roadmap:\n1. Python & Statistics\n2. Pandas, NumPy, Scikit-learn\n3. ML Models\n4. Kaggle projects\n5. Portfolio & Jobs"},
	{"medicine", "🩺 Medical Field Roadmap:\n1. Pre-med subjects\n2. Medical entrance tests\n3. MBBS studies\n4. Clinical rotations\n5. Specialization"},
}

// Roadmap returns a step-by-step learning roadmap for a career field.
// Unknown fields get a "no roadmap found" answer listing the known ones.
func Roadmap(field string) string {
	field = strings.ToLower(field)
	for _, r := range roadmaps {
		if strings.Contains(field, r.keyword) {
			return r.text
		}
	}
	return fmt.Sprintf("⚠️ No roadmap found for '%s'. Try software, data, or medicine.", field)
}

// Flights lists sample flights to a destination.
func Flights(destination string) string {
	return fmt.Sprintf("✈️ Flights to %s:\n- AirX: $300\n- FlyJet: $280\n- SkyHigh: $320", destination)
}

// Hotels lists sample hotels in a destination.
func Hotels(destination string) string {
	return fmt.Sprintf("🏨 Hotels in %s:\n- GrandView Hotel: 4⭐ ($120/night)\n- CozyStay Inn: 3⭐ ($80/night)", destination)
}
