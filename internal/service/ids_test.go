package service

// Fixture ids shared by the service tests. Request payloads must carry UUIDs.
const (
	idM1  = "a1a1a1a1-0000-4000-8000-000000000001"
	idM2  = "a1a1a1a1-0000-4000-8000-000000000002"
	idM9  = "a1a1a1a1-0000-4000-8000-000000000009"
	idP1  = "b2b2b2b2-0000-4000-8000-000000000001"
	idP2  = "b2b2b2b2-0000-4000-8000-000000000002"
	idP3  = "b2b2b2b2-0000-4000-8000-000000000003"
	idP4  = "b2b2b2b2-0000-4000-8000-000000000004"
	idP9  = "b2b2b2b2-0000-4000-8000-000000000009"
	idPR1 = "c3c3c3c3-0000-4000-8000-000000000001"
	idPR2 = "c3c3c3c3-0000-4000-8000-000000000002"
	idPR9 = "c3c3c3c3-0000-4000-8000-000000000009"
	idPT1 = "d4d4d4d4-0000-4000-8000-000000000001"
	idRX1 = "e5e5e5e5-0000-4000-8000-000000000001"
	idS1  = "f6f6f6f6-0000-4000-8000-000000000001"
	idU1  = "17171717-0000-4000-8000-000000000001"
	idU2  = "17171717-0000-4000-8000-000000000002"
)
