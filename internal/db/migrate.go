package db

import (
	"log"

	"github.com/uwcirg/truenth-portal-sub002/internal/domain"
)

// Migrate runs database migrations
func Migrate() {
	err := AppDb.AutoMigrate(
		&domain.ConsentEvent{},
		&domain.ResearchProtocol{},
		&domain.Recurrence{},
		&domain.QuestionnaireBank{},
		&domain.BankInstrument{},
		&domain.QuestionnaireResponse{},
		&domain.TimelineRow{},
		&domain.TimelineState{},
	)

	if err != nil {
		log.Fatal(err)
	}

	log.Println("Database schema migrated successfully")
}

// SeedData seeds the database with a demo protocol (for development only)
func SeedData() {
	var count int64
	AppDb.Model(&domain.ResearchProtocol{}).Where("study_id = ?", 1).Count(&count)
	if count > 0 {
		log.Println("Demo protocol already seeded")
		return
	}

	protocol := domain.ResearchProtocol{StudyID: 1, Name: "IRONMAN v3"}
	if err := AppDb.Create(&protocol).Error; err != nil {
		log.Printf("Error seeding demo protocol: %v", err)
		return
	}

	recurrence := domain.Recurrence{DaysToStart: 90, DaysInCycle: 90, DaysTillTermination: 720}
	if err := AppDb.Where(recurrence).FirstOrCreate(&recurrence).Error; err != nil {
		log.Printf("Error seeding recurrence: %v", err)
		return
	}

	baseline := domain.QuestionnaireBank{
		ResearchProtocolID: protocol.ID,
		Name:               "ironman_baseline",
		Classification:     domain.ClassificationBaseline,
		DueOffsetDays:      30,
		OverdueOffsetDays:  60,
		ExpiredOffsetDays:  90,
	}
	recurring := domain.QuestionnaireBank{
		ResearchProtocolID: protocol.ID,
		Name:               "ironman_quarterly",
		Classification:     domain.ClassificationRecurring,
		DueOffsetDays:      30,
		OverdueOffsetDays:  60,
		ExpiredOffsetDays:  90,
		RecurrenceID:       &recurrence.ID,
	}
	if err := AppDb.Create(&baseline).Error; err != nil {
		log.Printf("Error seeding baseline bank: %v", err)
		return
	}
	if err := AppDb.Create(&recurring).Error; err != nil {
		log.Printf("Error seeding recurring bank: %v", err)
		return
	}

	instruments := []domain.BankInstrument{
		{BankID: baseline.ID, Instrument: "epic26"},
		{BankID: baseline.ID, Instrument: "eproms_add"},
		{BankID: recurring.ID, Instrument: "epic26"},
	}
	if err := AppDb.Create(&instruments).Error; err != nil {
		log.Printf("Error seeding bank instruments: %v", err)
		return
	}

	log.Println("Seeded demo study protocol")
}
