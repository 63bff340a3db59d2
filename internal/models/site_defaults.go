package models

// DefaultSettings returns the fallback document for every known settings
// key. A fresh copy is built on each call so callers may mutate it.
func DefaultSettings() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"hero": {
			"headline":    "Learn without limits",
			"subheadline": "Courses, mentors and an AI study buddy in one place.",
			"cta_text":    "Get started",
			"cta_link":    "/signup",
			"image_url":   "",
		},
		"about": {
			"title":   "About Deedox",
			"content": "",
		},
		"contact": {
			"email":   "",
			"phone":   "",
			"address": "",
		},
		"carousel": {
			"items": []interface{}{},
		},
		"features": {
			"items": []interface{}{},
		},
		"stats": {
			"students":    0,
			"courses":     0,
			"instructors": 0,
		},
		"footer": {
			"text":  "",
			"links": []interface{}{},
		},
		"ai_assistant": {
			"enabled":       true,
			"default_model": "",
			"guest_allowed": true,
		},
	}
}

// DefaultSetting returns the fallback for key, or an empty object for
// keys without a built-in default.
func DefaultSetting(key string) map[string]interface{} {
	if v, ok := DefaultSettings()[key]; ok {
		return v
	}
	return map[string]interface{}{}
}
