package ingest

type fieldAliases struct {
	canonical string
	aliases   []string
}

var (
	advisorAliases      = []string{"Service Advisor", "Service_Advisor", "SA Name", "SA", "Advisor", "Advisor Name", FieldServiceAdvisor}
	vinAliases          = []string{"VIN", "VIN No", "Chassis No", "Chassis Number", FieldVIN}
	registrationAliases = []string{"Reg No", "Registration No", "Registration Number", "Vehicle Reg No", "Regn No", FieldRegistrationNo}
	roAliases           = []string{"RO No", "RO Number", "Repair Order No", "Job Card No", FieldRONumber}
	workTypeAliases     = []string{"Work Type", "Service Type", "Job Type", "Labour Type", FieldWorkType}
	labourAliases       = []string{"Labour Amt", "Labour Amount", "Labor Amount", "Labour", "Labour Value", FieldLabourAmount}
	partAliases         = []string{"Part Amt", "Part Amount", "Parts Amount", "Parts", "Parts Value", FieldPartAmount}
	customerAliases     = []string{"Customer Name", "Customer", FieldCustomerName}
)

// aliasTable holds the ordered header aliases per canonical field. The
// first alias present in a row wins. Matching is verbatim first, then on
// the folded header, so "RO No", "RO_No" and "ro_no" share one entry.
var aliasTable = map[UploadType][]fieldAliases{
	TypeROBilling: {
		{FieldRONumber, roAliases},
		{FieldBillDate, []string{"Bill Date", "Invoice Date", "Billing Date", FieldBillDate}},
		{FieldServiceAdvisor, advisorAliases},
		{FieldVIN, vinAliases},
		{FieldRegistrationNo, registrationAliases},
		{FieldWorkType, workTypeAliases},
		{FieldLabourAmount, labourAliases},
		{FieldPartAmount, partAliases},
		{FieldCustomerName, customerAliases},
	},
	TypeWarranty: {
		{FieldClaimNumber, []string{"Claim No", "Claim Number", "Warranty Claim No", FieldClaimNumber}},
		{FieldClaimDate, []string{"Claim Date", FieldClaimDate}},
		{FieldRONumber, roAliases},
		{FieldVIN, vinAliases},
		{FieldRegistrationNo, registrationAliases},
		{FieldServiceAdvisor, advisorAliases},
		{FieldClaimAmount, []string{"Claim Amount", "Claim Amt", "Approved Amount", FieldClaimAmount}},
		{FieldLabourAmount, labourAliases},
		{FieldPartAmount, partAliases},
		{FieldStatus, []string{"Claim Status", "Status", FieldStatus}},
	},
	TypeBookingList: {
		{FieldBookingNumber, []string{"Booking No", "Booking Number", "Booking ID", "Appointment No", FieldBookingNumber}},
		{FieldBookingDate, []string{"Booking Date", "Appointment Date", "Service Date", FieldBookingDate}},
		{FieldServiceAdvisor, advisorAliases},
		{FieldVIN, vinAliases},
		{FieldRegistrationNo, registrationAliases},
		{FieldCustomerName, customerAliases},
		{FieldWorkType, workTypeAliases},
		{FieldStatus, []string{"Booking Status", "Status", FieldStatus}},
	},
	TypeOperationsPart: {
		{FieldRONumber, roAliases},
		{FieldOperationCode, []string{"Operation Code", "Op Code", "Labour Code", FieldOperationCode}},
		{FieldPartNumber, []string{"Part No", "Part Number", "Part Code", FieldPartNumber}},
		{FieldPartName, []string{"Part Description", "Part Desc", "Description", FieldPartName}},
		{FieldQuantity, []string{"Qty", "Quantity", FieldQuantity}},
		{FieldServiceAdvisor, advisorAliases},
		{FieldLabourAmount, labourAliases},
		{FieldPartAmount, partAliases},
	},
	TypeRepairOrderList: {
		{FieldRONumber, roAliases},
		{FieldRODate, []string{"RO Date", "Job Card Date", "Open Date", FieldRODate}},
		{FieldServiceAdvisor, advisorAliases},
		{FieldVIN, vinAliases},
		{FieldRegistrationNo, registrationAliases},
		{FieldWorkType, workTypeAliases},
		{FieldStatus, []string{"RO Status", "Status", FieldStatus}},
	},
}
