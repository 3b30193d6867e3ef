package ussd

import (
	"fmt"
	"strings"

	"github.com/reliefline/reliefline/internal/matching"
	"github.com/reliefline/reliefline/pkg/models"
)

// USSD gateways expect plain-text bodies prefixed with CON (keep the
// session open) or END (terminate it).
const (
	prefixContinue = "CON "
	prefixEnd      = "END "
)

const (
	msgMainMenu = "Emergency Response System\r\n" +
		"Select service needed:\r\n" +
		"1. Shelter\r\n" +
		"2. Food\r\n" +
		"3. Transport\r\n" +
		"0. Exit"

	msgInvalidService = "Invalid selection. Please choose:\r\n" +
		"1. Shelter\r\n2. Food\r\n3. Transport\r\n0. Exit"

	msgInvalidLocation = "Please enter a valid location:"

	msgInvalidResource = "Invalid selection. Please choose a number from the list:"

	msgResourceTaken = "Selected resource is no longer available. Please choose another:"

	msgConfirmChoices = "Please choose:\r\n1. Confirm\r\n2. Cancel"

	msgFarewell = "Thank you for using Emergency Response System."

	msgCancelled = "Request cancelled. Stay safe!"

	msgRateLimited = "Too many requests. Please try again later."

	msgBlocked = "Request blocked for security reasons."

	msgUnavailable = "Service temporarily unavailable. Please try again."

	msgDuplicate = "You have a similar pending request. " +
		"Please wait for it to be processed."

	msgDepleted = "Resource no longer available. Please try again."

	msgFailed = "Failed to process request. Please try again."
)

func locationPrompt(rt models.ResourceType) string {
	return fmt.Sprintf("You selected: %s\r\n"+
		"Please enter your location (e.g., Lokoja, Ganaja):", rt.Title())
}

func noResourcesMessage(rt models.ResourceType, location string) string {
	return fmt.Sprintf("Sorry, no %s available near %s. "+
		"Please try again later or contact emergency services.", rt, location)
}

func resourceMenu(rt models.ResourceType, location string, candidates []matching.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Available %s near %s:\r\n", rt, location)
	for i, c := range candidates {
		status := "Available"
		if c.Resource.AvailableCapacity <= 0 {
			status = "Full"
		}
		fmt.Fprintf(&b, "%d. %s - %s (%s)\r\n", i+1, c.Resource.Name, status, c.Resource.PriceLabel())
	}
	b.WriteString("0. Back to main menu")
	return b.String()
}

func confirmationPrompt(rt models.ResourceType, r *models.Resource) string {
	return fmt.Sprintf("Confirm your request:\r\n"+
		"Service: %s\r\n"+
		"Provider: %s\r\n"+
		"Location: %s\r\n"+
		"Cost: %s\r\n\r\n"+
		"1. Confirm\r\n"+
		"2. Cancel", rt.Title(), r.Name, r.Location, r.PriceLabel())
}

func confirmedMessage(reference string, r *models.Resource) string {
	return fmt.Sprintf("Request confirmed!\r\n"+
		"Reference: %s\r\n"+
		"Provider: %s\r\n"+
		"Contact: %s\r\n"+
		"You will receive SMS confirmation shortly.", reference, r.Name, r.ContactPhone.String)
}
