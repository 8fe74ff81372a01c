package study

// DefaultDailyTargetHours applies when no valid target is stored.
const DefaultDailyTargetHours = 4.0

var defaultSubjects = []Subject{
	{ID: "anatomy", Name: "Anatomy", Color: "#FF6B6B", TargetHours: 150},
	{ID: "physiology", Name: "Physiology", Color: "#4ECDC4", TargetHours: 120},
	{ID: "biochemistry", Name: "Biochemistry", Color: "#45B7D1", TargetHours: 100},
	{ID: "pathology", Name: "Pathology", Color: "#96CEB4", TargetHours: 130},
	{ID: "pharmacology", Name: "Pharmacology", Color: "#FFEAA7", TargetHours: 110},
	{ID: "microbiology", Name: "Microbiology", Color: "#DDA0DD", TargetHours: 90},
	{ID: "forensic", Name: "Forensic Medicine", Color: "#98D8C8", TargetHours: 80},
	{ID: "community", Name: "Community Medicine", Color: "#F7DC6F", TargetHours: 85},
	{ID: "medicine", Name: "Medicine", Color: "#85C1E2", TargetHours: 200},
	{ID: "surgery", Name: "Surgery", Color: "#F8B739", TargetHours: 180},
	{ID: "obgyn", Name: "OB/GYN", Color: "#E8DAEF", TargetHours: 120},
	{ID: "pediatrics", Name: "Pediatrics", Color: "#ABEBC6", TargetHours: 140},
	{ID: "ophthalmology", Name: "Ophthalmology", Color: "#FAD7A0", TargetHours: 70},
	{ID: "ent", Name: "ENT", Color: "#D5A6BD", TargetHours: 70},
	{ID: "orthopedics", Name: "Orthopedics", Color: "#AED6F1", TargetHours: 90},
	{ID: "radiology", Name: "Radiology", Color: "#A9DFBF", TargetHours: 80},
	{ID: "psychiatry", Name: "Psychiatry", Color: "#F9E79F", TargetHours: 75},
	{ID: "dermatology", Name: "Dermatology", Color: "#D2B4DE", TargetHours: 65},
	{ID: "anesthesia", Name: "Anesthesia", Color: "#A3E4D7", TargetHours: 70},
}

// DefaultSubjects returns a fresh copy of the built-in medical subjects.
func DefaultSubjects() []Subject {
	return cloneSubjects(defaultSubjects)
}
