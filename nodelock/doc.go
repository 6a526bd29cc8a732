// Package nodelock provides offline, machine-bound software licensing.
//
// Install with:
//
//	go get github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock
//
// Licensing works without a network connection in two steps:
//
//   - The client creates a Contact describing its machine (a hardware
//     fingerprint and the running software version) and writes it encrypted
//     for the license server.
//   - The server reads the Contact, issues a License bound to that
//     fingerprint and writes it signed. The client verifies the signature
//     with the server's public key and checks the license locally.
//
// # Client
//
// Requesting a license:
//
//	ch, err := nodelock.NewChannel(serverPublicKey)
//	contact, err := nodelock.NewContact(nodelock.DefaultEnvironment())
//	w, err := nodelock.NewContactWriter(ch)
//	err = w.ToFile("request.txt", contact)
//
// Checking the installed license:
//
//	mgr, err := nodelock.Default()
//	if mgr.Session("main").IsFeatureAvailable(featureReports) {
//	    // ...
//	}
//
// # Server
//
//	ch, err := nodelock.NewChannel(nil, nodelock.WithPrivateKey(serverKey))
//	issuer, err := nodelock.NewIssuer(ch, nodelock.WithRegistry(registry))
//	contact, err := issuer.ReadContactFile("request.txt")
//	lic, err := issuer.NewLicense(contact)
//	_ = lic.SetValidity(nodelock.MustInterval(from, to))
//	_ = lic.SetFeature(featureReports, 1)
//	err = issuer.IssueToFile(ctx, "product.lic", lic)
//
// # Validity
//
// A license is valid when the current time is inside its validity window,
// the running software version is inside its version range and at most
// MaxHardwareChanges of its required fingerprint entries are missing or
// different on this machine.
package nodelock
