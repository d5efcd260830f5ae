package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/edimy/tutoring-backend/internal/utils"
	"github.com/edimy/tutoring-backend/pkg/jwt"
)

func main() {
	studentToken := flag.Bool("student-token", false, "also print a development access token for a test student")
	phone := flag.String("phone", "0771234567", "phone number embedded in the development token")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for Edimy")
	fmt.Println("===========================================")
	fmt.Println()

	secret, err := utils.GenerateSecret(32)
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("✅ Secret generated successfully!")
	fmt.Println()
	fmt.Println("Add this to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()

	if *studentToken {
		service := jwt.NewService(secret, 24*time.Hour)
		userID := uuid.New()
		token, err := service.GenerateAccessToken(userID, jwt.Profile{
			Email:     "student@example.lk",
			Phone:     *phone,
			FirstName: "Test",
			LastName:  "Student",
		}, []string{"student"})
		if err != nil {
			log.Fatalf("Failed to generate student token: %v", err)
		}

		fmt.Printf("Development student %s (valid 24h):\n", userID)
		fmt.Printf("Authorization: Bearer %s\n", token)
		fmt.Println()
	}

	fmt.Println("⚠️  IMPORTANT: Keep this secret safe and never commit it to version control!")
	fmt.Println("===========================================")
}
