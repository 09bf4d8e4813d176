package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCustomer_String(t *testing.T) {
	c := Customer{
		ID:            1,
		FirstName:     "Homer",
		MiddleInitial: "J",
		LastName:      "Simpson",
		Address:       "742 Evergreen Terrace",
		City:          "Springfield",
		State:         "OR",
		ZipCode:       "97403",
	}

	assert.Equal(t,
		"Customer{id=1, firstName='Homer', middleInitial='J', lastName='Simpson', address='742 Evergreen Terrace', city='Springfield', state='OR', zipCode='97403'}",
		c.String())
}
