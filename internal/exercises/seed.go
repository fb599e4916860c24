package exercises

// StarterCatalog is the library loaded when no database is configured.
func StarterCatalog() []Exercise {
	return []Exercise{
		{ID: "a3f1c2d4-0001-4c8e-9a10-000000000001", Name: "Glute Bridge", BodyArea: "hip", Goal: "strength", Difficulty: "beginner",
			Description: "Lift the hips off the floor from crook lying.", Instructions: "Squeeze glutes, hold two seconds at the top, lower slowly."},
		{ID: "a3f1c2d4-0002-4c8e-9a10-000000000002", Name: "Straight Leg Raise", BodyArea: "knee", Goal: "strength", Difficulty: "beginner",
			Description: "Quadriceps activation with the knee locked.", Instructions: "Tighten the thigh, lift the leg to the height of the bent knee."},
		{ID: "a3f1c2d4-0003-4c8e-9a10-000000000003", Name: "Wall Slide", BodyArea: "shoulder", Goal: "mobility", Difficulty: "beginner",
			Description: "Forearms on the wall, slide up into elevation.", Instructions: "Keep ribs down and shoulders away from the ears."},
		{ID: "a3f1c2d4-0004-4c8e-9a10-000000000004", Name: "Cat Camel", BodyArea: "lumbar spine", Goal: "mobility", Difficulty: "beginner",
			Description: "Alternate spinal flexion and extension in four point kneeling.", Instructions: "Move slowly through a comfortable range."},
		{ID: "a3f1c2d4-0005-4c8e-9a10-000000000005", Name: "Single Leg Balance", BodyArea: "ankle", Goal: "balance", Difficulty: "intermediate",
			Description: "Stand on one leg on a firm surface.", Instructions: "Progress to eyes closed or a cushion once steady for 30 seconds."},
		{ID: "a3f1c2d4-0006-4c8e-9a10-000000000006", Name: "Chin Tuck", BodyArea: "cervical spine", Goal: "posture", Difficulty: "beginner",
			Description: "Deep neck flexor activation.", Instructions: "Draw the chin straight back without tilting the head."},
		{ID: "a3f1c2d4-0007-4c8e-9a10-000000000007", Name: "Step Down", BodyArea: "knee", Goal: "strength", Difficulty: "advanced",
			Description: "Eccentric control off a low step.", Instructions: "Keep the knee over the second toe while lowering the heel."},
	}
}
