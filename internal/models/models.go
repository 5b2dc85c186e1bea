package models

// All lists every persisted model in migration order.
func All() []any {
	return []any{
		&Company{},
		&Permission{},
		&Role{},
		&User{},
		&AuditLog{},
		&Department{},
		&Employee{},
		&EmployeeAssignment{},
		&Customer{},
		&Project{},
		&Equipment{},
		&EquipmentRentalHistory{},
		&EquipmentMaintenance{},
		&Rental{},
		&RentalItem{},
		&EmployeeLeave{},
		&Timesheet{},
		&PayrollRun{},
		&Payroll{},
		&PayrollItem{},
		&AdvancePayment{},
		&AdvanceRepayment{},
		&Document{},
		&Notification{},
		&Conversation{},
		&ConversationParticipant{},
		&Message{},
	}
}
