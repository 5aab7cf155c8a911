package vault

// DeviceType describes one supported device family: the artifacts a flash
// needs in order, the native tool that writes them, the tool's argument
// template with {artifact-name} placeholders, and the credit cost of one
// flash.
type DeviceType struct {
	Name             string
	FirmwareFiles    []string
	Tool             string
	ArgumentTemplate string
	CreditCost       int
}

// deviceTypes is the closed set of supported families
var deviceTypes = map[string]DeviceType{
	"MTK6580": {
		Name:             "MTK6580",
		FirmwareFiles:    []string{"system.bin", "usbloader-5577.bin"},
		Tool:             "mtkflash",
		ArgumentTemplate: "-da {usbloader-5577.bin} -w system {system.bin}",
		CreditCost:       1,
	},
	"QCOM9008": {
		Name:             "QCOM9008",
		FirmwareFiles:    []string{"firehose-9008.mbn", "rawprogram0.xml.bin", "system-9008.bin"},
		Tool:             "edlwrite",
		ArgumentTemplate: "--loader {firehose-9008.mbn} --program {rawprogram0.xml.bin} --image {system-9008.bin}",
		CreditCost:       2,
	},
}

// GetDeviceType resolves a device type by name
func GetDeviceType(name string) (DeviceType, error) {
	dt, ok := deviceTypes[name]
	if !ok {
		return DeviceType{}, &UnknownDeviceTypeError{DeviceType: name}
	}
	return dt, nil
}

// DeviceTypeNames lists the supported family names
func DeviceTypeNames() []string {
	names := make([]string, 0, len(deviceTypes))
	for name := range deviceTypes {
		names = append(names, name)
	}
	return names
}
