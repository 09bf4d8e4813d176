// Package domain holds the customer records read by the sample jobs.
package domain

import "fmt"

// Customer is a row of the customer table. The parquet tags define the export schema.
type Customer struct {
	ID            int64  `gorm:"column:id;primaryKey" parquet:"name=id, type=INT64"`
	FirstName     string `gorm:"column:first_name" parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	MiddleInitial string `gorm:"column:middle_initial" parquet:"name=middle_initial, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName      string `gorm:"column:last_name" parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Address       string `gorm:"column:address" parquet:"name=address, type=BYTE_ARRAY, convertedtype=UTF8"`
	City          string `gorm:"column:city" parquet:"name=city, type=BYTE_ARRAY, convertedtype=UTF8"`
	State         string `gorm:"column:state" parquet:"name=state, type=BYTE_ARRAY, convertedtype=UTF8"`
	ZipCode       string `gorm:"column:zip_code" parquet:"name=zip_code, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TableName implements the GORM table namer.
func (Customer) TableName() string {
	return "customer"
}

// String returns the line the sample jobs print for c.
func (c Customer) String() string {
	return fmt.Sprintf("Customer{id=%d, firstName='%s', middleInitial='%s', lastName='%s', address='%s', city='%s', state='%s', zipCode='%s'}",
		c.ID, c.FirstName, c.MiddleInitial, c.LastName, c.Address, c.City, c.State, c.ZipCode)
}
